package migrations

import "embed"

// FS contains embedded SQLite migrations for merchant storage.
//
//go:embed *.sql
var FS embed.FS
