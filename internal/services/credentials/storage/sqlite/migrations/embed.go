package migrations

import "embed"

// FS contains embedded SQLite migrations for credentials storage.
//
//go:embed *.sql
var FS embed.FS
