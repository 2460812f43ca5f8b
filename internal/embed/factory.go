package embed

import (
	"fmt"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// NewEmbedder builds the configured provider wrapped in a cache.
// Only "static" (or empty) is known.
func NewEmbedder(provider string, dimensions, cacheSize int) (Embedder, error) {
	switch provider {
	case "", "static":
		return NewCachedEmbedder(NewStaticEmbedder(dimensions), cacheSize), nil
	default:
		return nil, herrors.New(herrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider %q", provider), nil).
			WithSuggestion(`Set embeddings.provider to "static"`)
	}
}
