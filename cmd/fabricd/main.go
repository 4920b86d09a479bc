// Command fabricd is the standalone runtime fabric daemon: it loads a
// runtime configuration, resolves and instantiates its actor set, and
// serves the HTTP control surface and gRPC health check until signaled to
// stop.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/wasmind-run/fabric/internal/build"
	"github.com/wasmind-run/fabric/internal/daemon"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to the runtime configuration TOML file (required)")
		cacheRoot      = flag.String("cache", "~/.fabric/cache", "Content-addressed source cache directory")
		dbPath         = flag.String("db", "~/.fabric/fabric.db", "Path to the cache index SQLite database")
		webAddr        = flag.String("web", ":8090", "HTTP control surface address (empty to disable)")
		grpcAddr       = flag.String("grpc", "localhost:10190", "gRPC health server address (empty to disable)")
		logDir         = flag.String("log-dir", "~/.fabric/logs", "Directory for log files (empty to disable file logging)")
		maxLogFiles    = flag.Int("max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = flag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
	)
	flag.Parse()

	if *configPath == "" {
		log.Println("missing required -config flag")
		os.Exit(daemon.ExitConfigError)
	}

	os.Exit(daemon.Run(daemon.Config{
		ConfigPath:     *configPath,
		CacheRoot:      *cacheRoot,
		DBPath:         *dbPath,
		WebAddr:        *webAddr,
		GRPCAddr:       *grpcAddr,
		LogDir:         *logDir,
		MaxLogFiles:    *maxLogFiles,
		MaxLogFileSize: *maxLogFileSize,
	}))
}
