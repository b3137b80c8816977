// Command procsuperd is the executable shell around the core: it wires
// config -> resolver/registry/lifecycle -> the reference ipc transport, the
// way the teacher's main.go wires native.NewBackend into pipe.NewServer.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
