// Package config loads the core's startup configuration: the Unix socket
// path, debug flag, and initial runtime-path overrides. None of it is
// required for the core to run — every field has a default mirroring the
// teacher's own defaultSocketPath() (XDG_RUNTIME_DIR, falling back to /tmp).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/averyln/procsuper/internal/model"
)

// Config is the core's full startup configuration.
type Config struct {
	SocketPath       string            `yaml:"socket_path"`
	Debug            bool              `yaml:"debug"`
	ShutdownGraceMS  int               `yaml:"shutdown_grace_ms"`
	RuntimeOverrides map[string]string `yaml:"runtime_overrides"`
}

// Default returns the configuration the core uses when no file is given and
// no flags override it.
func Default() Config {
	return Config{
		SocketPath:      defaultSocketPath(),
		Debug:           false,
		ShutdownGraceMS: 200,
	}
}

func defaultSocketPath() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "procsuper.sock")
	}
	return "/tmp/procsuper.sock"
}

// Load reads an optional YAML config file, overlaying it onto Default().
// A missing file is not an error — the caller gets plain defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// RuntimeOverrideMap converts the string-keyed YAML map into the
// model.RuntimeTag-keyed map the resolver expects, silently dropping any
// key that isn't one of the three recognized runtimes.
func (c Config) RuntimeOverrideMap() map[model.RuntimeTag]string {
	out := make(map[model.RuntimeTag]string, len(c.RuntimeOverrides))
	for k, v := range c.RuntimeOverrides {
		rt := model.RuntimeTag(k)
		switch rt {
		case model.RuntimeBun, model.RuntimeDeno, model.RuntimeNode:
			out[rt] = v
		}
	}
	return out
}
