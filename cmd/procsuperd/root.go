package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagSocketPath string
	flagDebug      bool
)

// newRootCmd builds the procsuperd CLI, structured the way
// bartekus-stagecraft and arctir-proctor lay out a cobra root command plus
// subcommands, replacing the teacher's bare flag.String/flag.Bool pair.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "procsuperd",
		Short: "Process-supervision and stdio-relay core",
		Long: "procsuperd spawns, tracks, and tears down named child processes, " +
			"relaying their stdio to a Unix-socket event subscriber.",
		RunE: runServe,
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to an optional YAML config file")
	root.PersistentFlags().StringVar(&flagSocketPath, "socket", "", "Unix socket path (overrides config and default)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newDetectRuntimesCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("procsuperd " + version)
			return nil
		},
	}
}
