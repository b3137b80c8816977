// Package logging centralizes construction of the core's structured logger.
// Every component is handed a named, scoped hclog.Logger rather than reaching
// for the global "log" package, the way Xuanwo-nomad-driver-systemd-nspawn
// scopes a logger per subsystem (d.logger.Named(pluginName)).
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger for the process. debug raises the level to
// Debug; otherwise the core logs at Info and above.
func New(debug bool, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level := hclog.Info
	if debug {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            "procsuper",
		Level:           level,
		Output:          out,
		IncludeLocation: debug,
	})
}

// Discard is a logger that drops everything, for use in tests that don't
// want log noise.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}
