package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wasmind-run/fabric/internal/cache"
	"github.com/wasmind-run/fabric/internal/fetch"
	"github.com/wasmind-run/fabric/internal/manifest"
	"github.com/wasmind-run/fabric/internal/resolve"
)

var (
	resolveCacheRoot string
	resolveDBPath    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <config.toml>",
	Short: "Dry-run the dependency resolver and print the resolved actor set",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(
		&resolveCacheRoot, "cache", "~/.fabric/cache",
		"Content-addressed source cache directory",
	)
	resolveCmd.Flags().StringVar(
		&resolveDBPath, "db", "~/.fabric/fabric.db",
		"Path to the cache index SQLite database",
	)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cacheRoot := expandHome(resolveCacheRoot)
	dbPath := expandHome(resolveDBPath)

	cfg, err := manifest.LoadRuntimeConfig(args[0])
	if err != nil {
		return fmt.Errorf("loading runtime config: %w", err)
	}

	store, err := cache.New(cacheRoot, cache.Config{IndexFileName: dbPath})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer store.Close()

	fetcher := fetch.New(store, filepath.Join(cacheRoot, "git"))
	resolver := resolve.New(fetcher)

	userActors, overrides, err := resolve.FromRuntimeConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}

	resolved, err := resolver.Resolve(context.Background(), userActors, overrides)
	if err != nil {
		return fmt.Errorf("resolving actor set: %w", err)
	}

	data, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return nil
}
