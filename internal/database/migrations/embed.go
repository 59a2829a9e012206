// Package migrations embeds the PostgreSQL schema.
package migrations

import "embed"

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed *.sql
var PostgresFS embed.FS
