package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btclog/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

const (
	// LatestMigrationVersion is the latest migration version of the
	// cache index database.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// MigrationTarget is a functional option that specifies the version to
// migrate to. currentDBVersion is the current migration version of the
// database; maxMigrationVersion is the maximum version known to the driver.
type MigrationTarget func(mig *migrate.Migrate,
	currentDBVersion int, maxMigrationVersion uint) error

// TargetLatest is a MigrationTarget that migrates to the latest version
// available.
var TargetLatest MigrationTarget = func(mig *migrate.Migrate, _ int, _ uint) error {
	return mig.Up()
}

// ErrMigrationDowngrade is returned when a database downgrade is detected.
var ErrMigrationDowngrade = errors.New("cache index downgrade detected")

type migrateOptions struct {
	latestVersion uint
}

func defaultMigrateOptions() *migrateOptions {
	return &migrateOptions{latestVersion: LatestMigrationVersion}
}

// migrationLogger adapts this package's btclog.Logger to the migrate.Logger
// interface.
type migrationLogger struct {
	log btclog.Logger
}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.Infof(format, v...)
}

// Verbose returns true when verbose logging is enabled.
func (m *migrationLogger) Verbose() bool {
	return true
}

// applyMigrations executes the cache index's migration files against the
// given driver, up to the given target version.
func applyMigrations(driver database.Driver, target MigrationTarget,
	opts *migrateOptions) error {

	migrateFileServer, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", migrateFileServer, "sqlite", driver,
	)
	if err != nil {
		return err
	}

	migrationVersion, dirty, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf(
			"unable to determine current migration version: %w",
			err,
		)
	}

	if dirty {
		return fmt.Errorf("cache index is in a dirty state at "+
			"version %v, manual intervention required",
			migrationVersion)
	}

	if migrationVersion > int(opts.latestVersion) {
		return fmt.Errorf("%w: index version is newer than the "+
			"latest migration version: index_version=%v, "+
			"latest_migration_version=%v", ErrMigrationDowngrade,
			migrationVersion, opts.latestVersion)
	}

	currentDBVersion, _, err := driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current index version: %w", err)
	}

	log.InfoS(context.Background(), "Applying cache index migration(s)",
		"current_version", currentDBVersion,
		"latest_version", opts.latestVersion)

	sqlMigrate.Log = &migrationLogger{log}

	err = target(sqlMigrate, currentDBVersion, opts.latestVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	currentDBVersion, _, err = driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current index version: %w", err)
	}

	log.InfoS(context.Background(), "Cache index version after migration",
		"current_version", currentDBVersion)

	return nil
}
