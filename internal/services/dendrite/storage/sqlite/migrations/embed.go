package migrations

import "embed"

// FS contains embedded SQLite migrations for the narrative graph store.
//
//go:embed *.sql
var FS embed.FS
