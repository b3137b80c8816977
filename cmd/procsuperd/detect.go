package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/averyln/procsuper/internal/config"
	"github.com/averyln/procsuper/internal/logging"
	"github.com/averyln/procsuper/internal/resolver"
)

// newDetectRuntimesCmd surfaces the Runtime Resolver's detection logic as a
// standalone operator tool, for debugging a broken PATH without standing up
// the full socket server — the same convenience the teacher's -version/
// -debug flags offer around the same binary.
func newDetectRuntimesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-runtimes",
		Short: "Probe bun/deno/node availability and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfigPath)
			if err != nil {
				return err
			}

			log := logging.New(flagDebug, cmd.ErrOrStderr())
			res := resolver.New(log)
			for rt, path := range cfg.RuntimeOverrideMap() {
				res.SetOverride(rt, path)
			}

			for _, info := range res.DetectRuntimes() {
				path := "-"
				if info.Path != nil {
					path = *info.Path
				}
				version := "-"
				if info.Version != nil {
					version = *info.Version
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s available=%-5v path=%-30s version=%s\n",
					info.Name, info.Available, path, version)
			}
			return nil
		},
	}
}
