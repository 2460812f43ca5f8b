//go:build !cgo_sqlite

package store

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteDriverName is the database/sql driver used for the lexical index.
const SQLiteDriverName = "sqlite"
