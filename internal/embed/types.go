// Package embed turns text into vectors for the semantic half of the index.
package embed

import (
	"context"
	"fmt"
	"math"
)

const (
	// StaticDimensions is the default vector size of the static embedder.
	StaticDimensions = 256

	// DefaultEmbeddingCacheSize is the number of vectors CachedEmbedder keeps.
	DefaultEmbeddingCacheSize = 10000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// EmbedQuery embeds a single query string with e.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// normalizeVector returns v scaled to unit length. Zero vectors come back as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
