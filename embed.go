package solace

import "embed"

// MigrationsFS embeds SQL migrations for the Postgres store.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
