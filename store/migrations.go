package store

import "embed"

// Migrations embeds the store schema DDL (spec.md §6) for
// shared/migration.Migrator, mirroring the teacher's per-service
// embed.FS + db_schema convention.
//
//go:embed migrations/*.sql
var Migrations embed.FS
