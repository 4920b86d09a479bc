package cache

import (
	"context"
	"time"
)

// Cache is the content-addressed source cache: a filesystem Directory for
// the actual bytes, fronted by a SQLite Store index for fast, I/O-free
// manifest-only lookups.
type Cache struct {
	Dir   *Directory
	Index *Store
}

// New opens a Cache rooted at dirRoot with an index database at
// cfg.IndexFileName.
func New(dirRoot string, cfg Config) (*Cache, error) {
	dir, err := NewDirectory(dirRoot)
	if err != nil {
		return nil, err
	}

	index, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	return &Cache{Dir: dir, Index: index}, nil
}

// Close releases the cache's resources (currently just the index database;
// the filesystem directory requires no handle).
func (c *Cache) Close() error {
	return c.Index.Close()
}

// HasManifest reports whether the manifest for hash is cached, checking the
// index first (so a warm process never touches the filesystem) and falling
// back to a filesystem stat so a cold process started against an existing
// cache directory still short-circuits correctly.
func (c *Cache) HasManifest(ctx context.Context, hash string) bool {
	if entry, ok, err := c.Index.Lookup(ctx, hash); err == nil && ok {
		return entry.HasManifest
	}

	return c.Dir.HasManifest(hash)
}

// RecordManifest writes the manifest and updates the index row for hash. The
// filesystem write happens first and must succeed before the index is
// touched, so an index row is never created pointing at a missing entry.
func (c *Cache) RecordManifest(ctx context.Context, hash string,
	descr SourceDescriptor, manifestBytes []byte) error {

	if err := c.Dir.WriteManifest(hash, manifestBytes); err != nil {
		return err
	}

	kind := "path"
	if descr.IsGit() {
		kind = "git"
	}

	existing, _, _ := c.Index.Lookup(ctx, hash)
	existing.Hash = hash
	existing.SourceKind = kind
	existing.SourceDescr = descr.String()
	existing.BuildDir = c.Dir.EntryDir(hash)
	existing.HasManifest = true
	existing.HasComponent = c.Dir.HasComponent(hash)
	if existing.FetchedAt.IsZero() {
		existing.FetchedAt = time.Now()
	}

	return c.Index.Upsert(ctx, existing)
}

// GC removes every indexed entry whose hash is not in keep, deleting both
// the on-disk entry and its index row. The filesystem removal happens
// before the index row is dropped, so a crash mid-GC leaves at worst an
// index row pointing at an already-missing entry rather than the reverse
// (an index row silently vanishing while the bytes remain). HasManifest
// trusts such a leftover row: it only stats the filesystem when no row
// exists.
func (c *Cache) GC(ctx context.Context, keep map[string]struct{}) ([]string, error) {
	entries, err := c.Index.List(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if _, ok := keep[e.Hash]; ok {
			continue
		}

		if err := c.Dir.Remove(e.Hash); err != nil {
			return removed, err
		}
		if err := c.Index.Delete(ctx, e.Hash); err != nil {
			return removed, err
		}

		removed = append(removed, e.Hash)
	}

	return removed, nil
}

// RecordComponent writes the built component artifact and updates the index
// row for hash, marking the build complete.
func (c *Cache) RecordComponent(ctx context.Context, hash string,
	descr SourceDescriptor, componentBytes []byte) error {

	if err := c.Dir.WriteComponent(hash, componentBytes); err != nil {
		return err
	}

	kind := "path"
	if descr.IsGit() {
		kind = "git"
	}

	existing, _, _ := c.Index.Lookup(ctx, hash)
	existing.Hash = hash
	existing.SourceKind = kind
	existing.SourceDescr = descr.String()
	existing.BuildDir = c.Dir.EntryDir(hash)
	existing.HasManifest = c.Dir.HasManifest(hash)
	existing.HasComponent = true
	if existing.FetchedAt.IsZero() {
		existing.FetchedAt = time.Now()
	}
	now := time.Now()
	existing.BuiltAt = &now

	return c.Index.Upsert(ctx, existing)
}
