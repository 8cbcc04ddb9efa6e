package migrations

import "embed"

// FS contains the embedded SQLite migrations of the catalog.
//
//go:embed *.sql
var FS embed.FS
