// Package commands holds the tater CLI.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var (
	rootCmd    *cobra.Command
	configPath string
)

func Root() *cobra.Command {
	if rootCmd != nil {
		return rootCmd
	}

	rootCmd = &cobra.Command{
		Use:   "tater",
		Short: "tater — multi-platform chat assistant with tool dispatch",
		Long: `tater runs the Tater Totterson assistant: it connects chat front ends
(Matrix, web UI, home-automation bridges) to an LLM and dispatches the
tool calls the model emits to its plugin set.

Quick start:
  tater serve                 Run the configured gateways
  tater plugin list           Show installed plugins and their state
  tater plugin enable <name>  Switch a plugin on`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
			slog.SetDefault(logger)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(
		versionCmd(),
		serveCmd(),
		pluginCmd(),
		historyCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tater version %s\n", Version)
		},
	}
}
