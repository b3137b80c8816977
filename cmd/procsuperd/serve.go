package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/averyln/procsuper/internal/config"
	"github.com/averyln/procsuper/internal/ipc"
	"github.com/averyln/procsuper/internal/lifecycle"
	"github.com/averyln/procsuper/internal/logging"
	"github.com/averyln/procsuper/internal/registry"
	"github.com/averyln/procsuper/internal/resolver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Unix-socket process-supervision server (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	if flagSocketPath != "" {
		cfg.SocketPath = flagSocketPath
	}
	if flagDebug {
		cfg.Debug = true
	}

	log := logging.New(cfg.Debug, os.Stderr)
	log.Info("procsuperd starting", "version", version, "socket", cfg.SocketPath)

	res := resolver.New(log)
	for rt, path := range cfg.RuntimeOverrideMap() {
		res.SetOverride(rt, path)
	}

	reg := registry.New()
	broker := ipc.NewBroker(log)
	ctrl := lifecycle.New(reg, res, broker, log)

	server := ipc.NewServer(cfg.SocketPath, ctrl, broker, log)
	if err := server.Start(); err != nil {
		return err
	}
	log.Info("listening", "socket", cfg.SocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())

	grace := time.Duration(cfg.ShutdownGraceMS) * time.Millisecond
	if grace <= 0 {
		grace = 200 * time.Millisecond
	}
	ctrl.Shutdown(grace)
	server.Stop()
	return nil
}
