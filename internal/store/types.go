// Package store provides the persistence layer: the BM25 lexical index
// (SQLite or Bleve), the in-process HNSW vector store, and the bbolt file map
// that tracks which document ids each file produced.
package store

import (
	"context"
	"fmt"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// Sentinel errors. Compare with errors.Is.
var (
	// ErrStorageNotReady is returned by any operation on a store that is not open.
	ErrStorageNotReady = herrors.New(herrors.ErrCodeStorageNotReady, "storage not ready", nil)

	// ErrCollectionExists is returned by CreateCollection for a duplicate name.
	ErrCollectionExists = herrors.New(herrors.ErrCodeCollectionExists, "collection already exists", nil)

	// ErrCollectionNotFound is returned when a vector collection is missing.
	ErrCollectionNotFound = herrors.New(herrors.ErrCodeCollectionNotFound, "collection not found", nil)
)

// notReady builds an ErrStorageNotReady naming the store.
func notReady(what string) error {
	return herrors.New(herrors.ErrCodeStorageNotReady, what+" is not open", nil)
}

// LexicalResult is a single BM25 hit.
type LexicalResult struct {
	DocumentID string
	Score      float64
}

// LexicalStats summarizes the indexed documents.
type LexicalStats struct {
	TotalDocuments        int
	AverageDocumentLength float64
	TotalTerms            int
}

// LexicalIndex provides keyword search using BM25 scoring.
type LexicalIndex interface {
	// IndexDocument replaces any previous entries for id with the tokens of text.
	IndexDocument(ctx context.Context, id, text string) error

	// DeleteDocument removes every entry for id. Missing ids are not an error.
	DeleteDocument(ctx context.Context, id string) error

	// Search returns up to topK documents ordered by descending score.
	Search(ctx context.Context, query string, topK int) ([]*LexicalResult, error)

	// ClearIndex removes all documents.
	ClearIndex(ctx context.Context) error

	// Stats reports document counts and average length.
	Stats(ctx context.Context) (*LexicalStats, error)

	Close() error
}

// BM25Config configures BM25 scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64

	// StopWords replaces DefaultStopWords when non-nil.
	StopWords []string
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:        1.5,
		B:         0.75,
		StopWords: DefaultStopWords,
	}
}

// VectorRecord is one vector with its id and metadata.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID       string
	Score    float64 // similarity, higher is better
	Metadata map[string]any
}

// VectorStore manages named collections of vectors with metadata.
type VectorStore interface {
	// CreateCollection fails with ErrCollectionExists when name is taken.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, collection string, records []VectorRecord) error

	// Query returns the topK nearest records whose metadata equals every
	// key/value in filter. A nil filter matches everything.
	Query(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]*VectorResult, error)

	// Delete removes ids from collection. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteCollection drops a collection and all its records.
	DeleteCollection(ctx context.Context, name string) error
}

// MetadataReader is implemented by vector stores that can return the
// metadata of known ids without a vector query. Ids without a live
// record are absent from the result.
type MetadataReader interface {
	Metadata(ctx context.Context, collection string, ids []string) (map[string]map[string]any, error)
}

// ErrDimensionMismatch indicates a vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'hybridindex clear --all' and reindex)", e.Expected, e.Got)
}
