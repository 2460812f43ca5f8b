package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend names a LexicalIndex implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite is the default BM25 backend.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses a Bleve index directory.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex opens the backend at basePath plus a backend suffix
// (.db or .bleve). An empty basePath opens an in-memory index.
func NewLexicalIndex(basePath string, backend string, config BM25Config) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteBM25Index(path, config)

	case LexicalBackendBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// LexicalIndexBasePath returns the base path for the lexical index in dataDir.
func LexicalIndexBasePath(dataDir string) string {
	return filepath.Join(dataDir, "lexical")
}
