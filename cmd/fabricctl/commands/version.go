package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wasmind-run/fabric/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit hash, and build metadata for fabricctl.`,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("fabricctl version %s", build.Version())

	if build.Commit != "" {
		fmt.Printf(" commit=%s", build.Commit)
	}
	fmt.Printf(" go=%s\n", build.GoVersion)
}
