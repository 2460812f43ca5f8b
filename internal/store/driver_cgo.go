//go:build cgo_sqlite

package store

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

// SQLiteDriverName is the database/sql driver used for the lexical index.
const SQLiteDriverName = "sqlite3"
