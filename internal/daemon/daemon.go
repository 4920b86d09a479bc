// Package daemon wires together the Source Acquirer, Dependency Resolver,
// Sandbox Host, Broadcast Bus, and Coordinator into one running process, and
// exposes the result as a single Run call so both the standalone fabricd
// binary and fabricctl's "run" subcommand share one startup path.
package daemon

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"
	"google.golang.org/grpc"

	"github.com/wasmind-run/fabric/internal/baselib/actor"
	"github.com/wasmind-run/fabric/internal/build"
	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/cache"
	"github.com/wasmind-run/fabric/internal/coordinator"
	"github.com/wasmind-run/fabric/internal/fabricweb"
	"github.com/wasmind-run/fabric/internal/fabscope"
	"github.com/wasmind-run/fabric/internal/fetch"
	"github.com/wasmind-run/fabric/internal/healthsrv"
	"github.com/wasmind-run/fabric/internal/manifest"
	"github.com/wasmind-run/fabric/internal/resolve"
	"github.com/wasmind-run/fabric/internal/sandbox"
)

// Exit codes, per the daemon's documented process contract.
const (
	ExitOK             = 0
	ExitConfigError    = 1
	ExitResolutionErr  = 2
	ExitStartupFailure = 3
)

// Config holds every knob the daemon entrypoint and fabricctl's "run"
// subcommand expose as flags.
type Config struct {
	ConfigPath string
	CacheRoot  string
	DBPath     string
	WebAddr    string
	GRPCAddr   string

	LogDir         string
	MaxLogFiles    int
	MaxLogFileSize int
}

// Run loads cfg.ConfigPath, resolves and materializes its actor set, starts
// the sandbox host, coordinator, health, and control-surface listeners, runs
// the root scope, and blocks until a signal or a root-scope Exit is
// observed. It returns one of the Exit* codes above.
func Run(cfg Config) int {
	cacheRootExpanded := expandHome(cfg.CacheRoot)
	dbPathExpanded := expandHome(cfg.DBPath)
	logDirExpanded := expandHome(cfg.LogDir)

	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    cfg.MaxLogFiles,
			MaxLogFileSize: cfg.MaxLogFileSize,
			Filename:       build.DefaultLogFilename,
		})
		if err != nil {
			log.Printf("failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()

			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("fabricd version %s commit=%s go=%s",
		build.Version(), commitInfo(), build.GoVersion)

	wireLoggers(logRotator)

	runtimeCfg, err := manifest.LoadRuntimeConfig(cfg.ConfigPath)
	if err != nil {
		log.Printf("failed to load runtime config: %v", err)
		return ExitConfigError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := cache.New(cacheRootExpanded, cache.Config{IndexFileName: dbPathExpanded})
	if err != nil {
		log.Printf("failed to open cache: %v", err)
		return ExitStartupFailure
	}
	defer store.Close()

	fetcher := fetch.New(store, filepath.Join(cacheRootExpanded, "git"))
	resolver := resolve.New(fetcher)

	userActors, overrides, err := resolve.FromRuntimeConfig(runtimeCfg)
	if err != nil {
		log.Printf("invalid runtime config: %v", err)
		return ExitConfigError
	}

	resolved, err := resolver.Resolve(ctx, userActors, overrides)
	if err != nil {
		log.Printf("failed to resolve actor set: %v", err)
		return ExitResolutionErr
	}

	if err := resolver.Materialize(ctx, resolved); err != nil {
		log.Printf("failed to materialize resolved actors: %v", err)
		return ExitResolutionErr
	}

	b := bus.New(bus.DefaultCapacity)
	tree := fabscope.NewTree()

	// The Coordinator is constructed without a Host - its SpawnAgent method
	// is what the Host's SpawnFunc delegates to, so the Host cannot exist
	// first. Start the Coordinator to obtain a live reference, build the
	// Host around that reference, then wire it back in.
	coord := coordinator.NewCoordinator(resolved, nil, b, tree)
	coordRef := coord.Start(ctx)

	host, err := sandbox.NewHost(ctx, b, tree, coord.SpawnAgent, hostInfo())
	if err != nil {
		log.Printf("failed to build sandbox host: %v", err)
		return ExitStartupFailure
	}
	defer host.Close(ctx)

	coord.SetHost(host)

	healthSrv := healthsrv.New(coordRef)

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Printf("failed to listen on %s: %v", cfg.GRPCAddr, err)
			return ExitStartupFailure
		}

		grpcServer = grpc.NewServer()
		healthSrv.Register(grpcServer)
		healthSrv.Start(ctx)
		defer healthSrv.Stop()

		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("grpc server stopped: %v", err)
			}
		}()
		defer grpcServer.GracefulStop()

		log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
	}

	var webServer *fabricweb.Server
	if cfg.WebAddr != "" {
		webServer = fabricweb.NewServer(fabricweb.Config{
			Addr:        cfg.WebAddr,
			Coordinator: coordRef,
			Bus:         b,
		})
		if err := webServer.Start(); err != nil {
			log.Printf("failed to start control surface: %v", err)
			return ExitStartupFailure
		}
		defer webServer.Stop(context.Background())

		log.Printf("HTTP control surface listening on %s", cfg.WebAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startResult, err := coordRef.Ask(ctx, coordinator.StartRootCmd{
		StartingActors: runtimeCfg.StartingActors,
	}).Await(ctx).Unpack()
	if err != nil {
		log.Printf("failed to start root scope: %v", err)
		return ExitStartupFailure
	}
	rootScope, _ := startResult.(coordinator.ScopeResult)
	log.Printf("root scope %s started with actors %v",
		rootScope.Scope, runtimeCfg.StartingActors)

	select {
	case sig := <-sigCh:
		log.Printf("received %v, initiating graceful shutdown", sig)

		// A root Exit was not observed, so the Coordinator's own drain
		// timer never started. Request one explicitly and wait for it,
		// bounded, so the deferred teardown above runs against a settled
		// coordinator rather than a mid-teardown one.
		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(), 30*time.Second,
		)
		defer shutdownCancel()

		if _, err := coordRef.Ask(shutdownCtx, coordinator.RequestExitCmd{
			Scope: fabscope.Root,
		}).Await(shutdownCtx).Unpack(); err != nil {
			log.Printf("requesting root exit during shutdown: %v", err)
		}

		select {
		case <-coord.Done():
		case <-shutdownCtx.Done():
			log.Println("shutdown deadline exceeded, exiting anyway")
		}
		cancel()

	case <-coord.Done():
		log.Println("root scope exited, shutting down")
		cancel()
	}

	return ExitOK
}

// wireLoggers attaches a console (and, if enabled, rotating file) btclog
// handler to every package that declares a package-level logger, matching
// this codebase's existing dual-stream logging setup.
func wireLoggers(rotator *build.RotatingLogWriter) {
	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if rotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(rotator))
	}

	combined := build.NewHandlerSet(handlers...)
	root := btclog.NewSLogger(combined)

	actor.UseLogger(root.WithPrefix(actor.Subsystem))
	bus.UseLogger(root.WithPrefix(bus.Subsystem))
	cache.UseLogger(root.WithPrefix(cache.Subsystem))
	fetch.UseLogger(root.WithPrefix(fetch.Subsystem))
	resolve.UseLogger(root.WithPrefix(resolve.Subsystem))
	sandbox.UseLogger(root.WithPrefix(sandbox.Subsystem))
	coordinator.UseLogger(root.WithPrefix(coordinator.Subsystem))
	healthsrv.UseLogger(root.WithPrefix(healthsrv.Subsystem))
	fabricweb.UseLogger(root.WithPrefix(fabricweb.Subsystem))
}

// hostInfo returns the read-only values every sandbox instance's
// host_info.* capability calls resolve against.
func hostInfo() map[string]string {
	return map[string]string{
		"fabric_version": build.Version(),
		"go_version":     build.GoVersion,
	}
}

// expandHome expands a leading "~" into the user's home directory, matching
// this codebase's existing daemon entrypoint convention.
func expandHome(path string) string {
	if path == "" {
		return ""
	}

	expanded := os.ExpandEnv(path)
	if expanded == path && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("failed to get home directory: %v", err)
		}
		expanded = home + path[1:]
	}
	return expanded
}

// commitInfo returns the best available commit identifier.
func commitInfo() string {
	if build.Commit != "" {
		return build.Commit
	}
	return "dev"
}
