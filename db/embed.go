package db

import "embed"

// MigrationsFS holds the schema migration files compiled into the binary so
// `driftline migrate` needs no external assets.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
