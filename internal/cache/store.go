package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// defaultMaxConns is the number of permitted active and idle
	// connections. SQLite wants a single writer with multiple readers.
	defaultMaxConns = 25

	// defaultConnMaxLifetime is the maximum amount of time a connection
	// can be reused for before it is closed.
	defaultConnMaxLifetime = 10 * time.Minute
)

// Config holds the arguments needed to open the cache index database.
type Config struct {
	// IndexFileName is the full file path of the SQLite index database.
	IndexFileName string

	// SkipMigrations, if true, leaves table creation to a prior run; used
	// in tests that share a fixture database.
	SkipMigrations bool
}

// Entry is one row of the cache index: the on-disk location and build
// status of a single content-addressed cache entry.
type Entry struct {
	Hash         string
	SourceKind   string
	SourceDescr  string
	BuildDir     string
	HasManifest  bool
	HasComponent bool
	FetchedAt    time.Time
	BuiltAt      *time.Time
}

// Store is the SQLite-backed index over the content-addressed cache
// directory. It lets fetch_manifest_only answer without a filesystem walk,
// and gives an operator a queryable view of cache occupancy.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache index database at the given
// path, applying pragmas tuned for a single-writer/multi-reader workload and
// running migrations unless explicitly skipped.
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.IndexFileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache index directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		cfg.IndexFileName,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxConns)
	db.SetMaxIdleConns(defaultMaxConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure cache index: %w", err)
	}

	s := &Store{db: db}

	if !cfg.SkipMigrations {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("error migrating cache index: %w", err)
		}
	}

	return s, nil
}

func (s *Store) migrate() error {
	driver, err := sqlite_migrate.WithInstance(s.db, &sqlite_migrate.Config{})
	if err != nil {
		return fmt.Errorf("error creating sqlite migration driver: %w", err)
	}

	return applyMigrations(driver, TargetLatest, defaultMigrateOptions())
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert records (or updates) the index row for a cache entry. It is called
// after every filesystem-level write to the cache directory completes, so an
// index row never points at a missing on-disk entry.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	var builtAt any
	if e.BuiltAt != nil {
		builtAt = e.BuiltAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (
			hash, source_kind, source_descr, build_dir,
			has_manifest, has_component, fetched_at, built_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			source_kind = excluded.source_kind,
			source_descr = excluded.source_descr,
			build_dir = excluded.build_dir,
			has_manifest = excluded.has_manifest,
			has_component = excluded.has_component,
			fetched_at = excluded.fetched_at,
			built_at = excluded.built_at
	`, e.Hash, e.SourceKind, e.SourceDescr, e.BuildDir,
		e.HasManifest, e.HasComponent, e.FetchedAt.Unix(), builtAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry %s: %w", e.Hash, err)
	}

	return nil
}

// Lookup returns the index row for the given content hash, if present.
func (s *Store) Lookup(ctx context.Context, hash string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hash, source_kind, source_descr, build_dir,
		       has_manifest, has_component, fetched_at, built_at
		FROM cache_entries WHERE hash = ?
	`, hash)

	var (
		e         Entry
		fetchedAt int64
		builtAt   sql.NullInt64
	)

	err := row.Scan(
		&e.Hash, &e.SourceKind, &e.SourceDescr, &e.BuildDir,
		&e.HasManifest, &e.HasComponent, &fetchedAt, &builtAt,
	)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up cache entry %s: %w", hash, err)
	}

	e.FetchedAt = time.Unix(fetchedAt, 0)
	if builtAt.Valid {
		t := time.Unix(builtAt.Int64, 0)
		e.BuiltAt = &t
	}

	return e, true, nil
}

// List returns every cache entry currently indexed, for operator inspection.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, source_kind, source_descr, build_dir,
		       has_manifest, has_component, fetched_at, built_at
		FROM cache_entries ORDER BY fetched_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			fetchedAt int64
			builtAt   sql.NullInt64
		)

		if err := rows.Scan(
			&e.Hash, &e.SourceKind, &e.SourceDescr, &e.BuildDir,
			&e.HasManifest, &e.HasComponent, &fetchedAt, &builtAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		e.FetchedAt = time.Unix(fetchedAt, 0)
		if builtAt.Valid {
			t := time.Unix(builtAt.Int64, 0)
			e.BuiltAt = &t
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Delete removes the index row for hash. Deleting a hash that is not
// indexed is not an error.
func (s *Store) Delete(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", hash, err)
	}

	return nil
}

// DefaultIndexPath returns the default path for the cache index database.
func DefaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".fabric", "fabric.db"), nil
}

// DefaultCacheRoot returns the default content-addressed cache directory.
func DefaultCacheRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".fabric", "cache"), nil
}
