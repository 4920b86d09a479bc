package cache

import "embed"

// sqlSchemas is an embedded file system containing the SQL migration files
// for the cache index database. Embedded at compile time for portability,
// matching this codebase's convention of shipping migrations inside the
// binary rather than alongside it on disk.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
