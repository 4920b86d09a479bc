// Package commands implements the fabricctl command tree: operator-facing
// subcommands over a running daemon's HTTP control surface, plus in-process
// resolve/run commands that need no daemon at all.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// daemonAddr is the base URL of a running daemon's HTTP control
	// surface, used by every subcommand that talks to a live daemon.
	daemonAddr string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "fabricctl",
	Short: "Operate a fabric runtime daemon",
	Long: `fabricctl drives the runtime fabric: resolve a configuration without
starting anything, run the daemon in-process, talk to a running
daemon's scope surface, or inspect and prune the local source cache.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&daemonAddr, "addr", "http://localhost:8090",
		"Base URL of a running daemon's HTTP control surface",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(cacheCmd)
}
