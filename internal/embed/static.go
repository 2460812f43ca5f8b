package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// StaticEmbedder hashes identifiers and character trigrams into a fixed-size
// vector. It needs no model or network and is fully deterministic, which makes
// it the default offline provider.
type StaticEmbedder struct {
	mu         sync.RWMutex
	dimensions int
	closed     bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// keywordNoise are language keywords that carry no meaning for retrieval.
var keywordNoise = map[string]struct{}{
	"func": {}, "function": {}, "def": {}, "class": {},
	"return": {}, "import": {}, "const": {}, "var": {},
	"let": {}, "int": {}, "string": {}, "bool": {},
	"void": {}, "true": {}, "false": {}, "nil": {},
	"null": {}, "this": {}, "self": {}, "new": {},
}

const (
	identifierWeight = 0.7
	trigramWeight    = 0.3
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// NewStaticEmbedder creates a static embedder producing vectors of the given
// size. dimensions <= 0 selects StaticDimensions.
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = StaticDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

// EmbedBatch embeds every text. Blank texts yield zero vectors.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, herrors.New(herrors.ErrCodeEmbeddingFailed, "embedder is closed", nil)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *StaticEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	text = strings.TrimSpace(text)
	if text == "" {
		return vec
	}

	for _, term := range identifierTerms(text) {
		if _, noise := keywordNoise[term]; noise {
			continue
		}
		vec[e.bucket(term)] += identifierWeight
	}

	compact := lettersAndDigits(text)
	for i := 0; i+3 <= len(compact); i++ {
		vec[e.bucket(compact[i:i+3])] += trigramWeight
	}

	return normalizeVector(vec)
}

func (e *StaticEmbedder) bucket(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dimensions))
}

// identifierTerms splits words and then breaks snake_case and camelCase apart,
// so getUserByID yields get, user, by, id.
func identifierTerms(text string) []string {
	var terms []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, piece := range splitCamelCase(part) {
				terms = append(terms, strings.ToLower(piece))
			}
		}
	}
	return terms
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	var parts []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func lettersAndDigits(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dimensions returns the vector size.
func (e *StaticEmbedder) Dimensions() int { return e.dimensions }

// ModelName returns "static".
func (e *StaticEmbedder) ModelName() string { return "static" }

// Close marks the embedder closed; later calls fail.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
