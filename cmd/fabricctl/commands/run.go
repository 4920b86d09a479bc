package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmind-run/fabric/internal/build"
	"github.com/wasmind-run/fabric/internal/daemon"
)

var (
	runCacheRoot      string
	runDBPath         string
	runWebAddr        string
	runGRPCAddr       string
	runLogDir         string
	runMaxLogFiles    int
	runMaxLogFileSize int
)

var runCmd = &cobra.Command{
	Use:   "run <config.toml>",
	Short: "Start the runtime fabric daemon in-process",
	Args:  cobra.ExactArgs(1),
	Run:   runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCacheRoot, "cache", "~/.fabric/cache", "Content-addressed source cache directory")
	runCmd.Flags().StringVar(&runDBPath, "db", "~/.fabric/fabric.db", "Path to the cache index SQLite database")
	runCmd.Flags().StringVar(&runWebAddr, "web", ":8090", "HTTP control surface address (empty to disable)")
	runCmd.Flags().StringVar(&runGRPCAddr, "grpc", "localhost:10190", "gRPC health server address (empty to disable)")
	runCmd.Flags().StringVar(&runLogDir, "log-dir", "~/.fabric/logs", "Directory for log files (empty to disable file logging)")
	runCmd.Flags().IntVar(&runMaxLogFiles, "max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
	runCmd.Flags().IntVar(&runMaxLogFileSize, "max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
}

func runRun(cmd *cobra.Command, args []string) {
	os.Exit(daemon.Run(daemon.Config{
		ConfigPath:     args[0],
		CacheRoot:      runCacheRoot,
		DBPath:         runDBPath,
		WebAddr:        runWebAddr,
		GRPCAddr:       runGRPCAddr,
		LogDir:         runLogDir,
		MaxLogFiles:    runMaxLogFiles,
		MaxLogFileSize: runMaxLogFileSize,
	}))
}
