package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wasmind-run/fabric/internal/cache"
	"github.com/wasmind-run/fabric/internal/fetch"
	"github.com/wasmind-run/fabric/internal/manifest"
	"github.com/wasmind-run/fabric/internal/resolve"
)

var (
	cacheRoot string
	cacheDB   string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the local content-addressed source cache",
}

var cacheStatCmd = &cobra.Command{
	Use:   "stat",
	Short: "Report cache occupancy",
	RunE:  runCacheStat,
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc <config.toml>",
	Short: "Remove cache entries not referenced by the given runtime configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheGC,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheRoot, "cache", "~/.fabric/cache", "Content-addressed source cache directory")
	cacheCmd.PersistentFlags().StringVar(&cacheDB, "db", "~/.fabric/fabric.db", "Path to the cache index SQLite database")

	cacheCmd.AddCommand(cacheStatCmd)
	cacheCmd.AddCommand(cacheGCCmd)
}

func openCache() (*cache.Cache, error) {
	return cache.New(expandHome(cacheRoot), cache.Config{
		IndexFileName: expandHome(cacheDB),
	})
}

func runCacheStat(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Index.List(context.Background())
	if err != nil {
		return err
	}

	var built int
	for _, e := range entries {
		if e.HasComponent {
			built++
		}
	}

	fmt.Printf("%d cache entries, %d fully built\n", len(entries), built)
	for _, e := range entries {
		fmt.Printf("  %s  %s  manifest=%v component=%v fetched=%s\n",
			e.Hash, e.SourceKind, e.HasManifest, e.HasComponent,
			e.FetchedAt.Format("2006-01-02T15:04:05"))
	}

	return nil
}

func runCacheGC(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, err := manifest.LoadRuntimeConfig(args[0])
	if err != nil {
		return fmt.Errorf("loading runtime config: %w", err)
	}

	fetcher := fetch.New(c, filepath.Join(expandHome(cacheRoot), "git"))
	resolver := resolve.New(fetcher)

	userActors, overrides, err := resolve.FromRuntimeConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}

	resolved, err := resolver.Resolve(context.Background(), userActors, overrides)
	if err != nil {
		return fmt.Errorf("resolving actor set: %w", err)
	}

	keep := make(map[string]struct{}, len(resolved))
	for _, ra := range resolved {
		keep[ra.Source.Hash()] = struct{}{}
	}

	removed, err := c.GC(context.Background(), keep)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d cache entries\n", len(removed))
	for _, hash := range removed {
		fmt.Printf("  %s\n", hash)
	}

	return nil
}
