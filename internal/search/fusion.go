package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/store"
)

// candidateFactor is how many candidates each side fetches per requested result.
const candidateFactor = 2

// Metadata keys read by filters.
const (
	metaFileType  = "fileType"
	metaLanguage  = "language"
	metaType      = "type"
	metaProjectID = "project_id"
)

// RankFusion combines lexical and vector search results.
//
// Algorithm: hybrid(d) = alpha*lexicalNorm(d) + (1-alpha)*vectorNorm(d)
//
// where each side is min-max normalized over the merged candidate set.
type RankFusion struct {
	lexical store.LexicalIndex
	vectors store.VectorStore
	logger  *slog.Logger

	mu    sync.RWMutex
	alpha float64
}

// Option configures a RankFusion.
type Option func(*RankFusion)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(f *RankFusion) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewRankFusion creates a RankFusion. alpha weights the lexical score and
// must lie in [0, 1].
func NewRankFusion(lexical store.LexicalIndex, vectors store.VectorStore, alpha float64, opts ...Option) (*RankFusion, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	f := &RankFusion{
		lexical: lexical,
		vectors: vectors,
		logger:  slog.Default(),
		alpha:   alpha,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func validateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return herrors.New(herrors.ErrCodeInvalidAlpha, "alpha must be between 0 and 1", nil).
			WithDetail("alpha", strconv.FormatFloat(alpha, 'g', -1, 64)).
			WithSuggestion("Use 0 for vector-only, 1 for lexical-only ranking")
	}
	return nil
}

// Alpha returns the lexical weight.
func (f *RankFusion) Alpha() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.alpha
}

// SetAlpha changes the lexical weight. Values outside [0, 1] are rejected
// and leave the current weight unchanged.
func (f *RankFusion) SetAlpha(alpha float64) error {
	if err := validateAlpha(alpha); err != nil {
		return err
	}
	f.mu.Lock()
	f.alpha = alpha
	f.mu.Unlock()
	return nil
}

// CalculateHybridScore blends normalized scores with the current alpha.
func (f *RankFusion) CalculateHybridScore(lexicalNorm, vectorNorm float64) float64 {
	alpha := f.Alpha()
	return alpha*lexicalNorm + (1-alpha)*vectorNorm
}

// NormalizeScores min-max scales scores into [0, 1]. A single element, or
// a list whose scores are all equal, normalizes to 1.0.
func NormalizeScores(scores []ScoredID) []ScoredID {
	out := make([]ScoredID, len(scores))
	if len(scores) == 0 {
		return out
	}

	lo, hi := scores[0].Score, scores[0].Score
	for _, s := range scores[1:] {
		lo = min(lo, s.Score)
		hi = max(hi, s.Score)
	}

	for i, s := range scores {
		out[i].ID = s.ID
		if hi == lo {
			out[i].Score = 1.0
			continue
		}
		out[i].Score = (s.Score - lo) / (hi - lo)
	}
	return out
}

// MergeResults unions both result sets by id. Metadata comes from the
// vector result, the only side that carries it.
func MergeResults(lexical []*store.LexicalResult, vector []*store.VectorResult) map[string]*MergedResult {
	merged := make(map[string]*MergedResult, len(lexical)+len(vector))
	getOrCreate := func(id string) *MergedResult {
		if r, ok := merged[id]; ok {
			return r
		}
		r := &MergedResult{ID: id}
		merged[id] = r
		return r
	}

	for _, r := range lexical {
		getOrCreate(r.DocumentID).LexicalScore = r.Score
	}
	for _, r := range vector {
		m := getOrCreate(r.ID)
		m.VectorScore = r.Score
		if r.Metadata != nil {
			m.Metadata = r.Metadata
		}
	}
	return merged
}

// filterFunc checks if a result matches one filter criterion.
type filterFunc func(*HybridResult) bool

// FilterResults keeps results matching every criterion of filter. A nil
// or empty filter returns results unchanged.
func FilterResults(results []*HybridResult, filter *Filter) []*HybridResult {
	if filter.IsEmpty() {
		return results
	}

	filters := buildFilters(filter)
	filtered := make([]*HybridResult, 0, len(results))
	for _, r := range results {
		if matchesAllFilters(r, filters) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func buildFilters(f *Filter) []filterFunc {
	var filters []filterFunc
	if len(f.FileTypes) > 0 {
		filters = append(filters, metadataInFilter(metaFileType, f.FileTypes))
	}
	if len(f.Languages) > 0 {
		filters = append(filters, metadataInFilter(metaLanguage, f.Languages))
	}
	if len(f.SymbolTypes) > 0 {
		filters = append(filters, metadataInFilter(metaType, f.SymbolTypes))
	}
	if f.ProjectID != "" {
		filters = append(filters, metadataInFilter(metaProjectID, []string{f.ProjectID}))
	}
	if f.PathPattern != "" {
		pattern := f.PathPattern
		filters = append(filters, func(r *HybridResult) bool {
			return strings.Contains(r.ID, pattern)
		})
	}
	return filters
}

func matchesAllFilters(r *HybridResult, filters []filterFunc) bool {
	for _, f := range filters {
		if !f(r) {
			return false
		}
	}
	return true
}

// metadataInFilter matches when metadata[key] is a string in values.
func metadataInFilter(key string, values []string) filterFunc {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(r *HybridResult) bool {
		v, ok := r.Metadata[key].(string)
		if !ok {
			return false
		}
		_, found := set[v]
		return found
	}
}

// RankResults sorts by descending hybrid score, keeping input order for
// ties, and truncates to topK. topK <= 0 keeps everything.
func RankResults(results []*HybridResult, topK int) []*HybridResult {
	ranked := make([]*HybridResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HybridScore > ranked[j].HybridScore
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Search runs a hybrid query against collection. A non-empty query fetches
// topK*2 lexical candidates; topK*2 vector candidates are always fetched.
// With an empty query the lexical side is skipped and the hybrid score is
// the normalized vector score. Vector store errors are returned unchanged.
func (f *RankFusion) Search(ctx context.Context, collection, query string, queryVector []float32, topK int, filter *Filter) ([]*HybridResult, error) {
	if topK <= 0 {
		return nil, herrors.New(herrors.ErrCodeInvalidQuery, "topK must be positive", nil).
			WithDetail("top_k", strconv.Itoa(topK))
	}

	limit := topK * candidateFactor
	lexicalQuery := strings.TrimSpace(query) != ""

	var (
		lexResults []*store.LexicalResult
		vecResults []*store.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if lexicalQuery {
		g.Go(func() error {
			var err error
			lexResults, err = f.lexical.Search(gctx, query, limit)
			return err
		})
	}
	g.Go(func() error {
		var err error
		vecResults, err = f.vectors.Query(gctx, collection, queryVector, limit, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := MergeResults(lexResults, vecResults)
	if err := f.fillMetadata(ctx, collection, merged); err != nil {
		return nil, err
	}
	results := f.fuse(merged, lexicalQuery)
	results = FilterResults(results, filter)
	ranked := RankResults(results, topK)

	f.logger.Debug("hybrid search",
		slog.String("collection", collection),
		slog.Int("lexical", len(lexResults)),
		slog.Int("vector", len(vecResults)),
		slog.Int("returned", len(ranked)))

	return ranked, nil
}

// fillMetadata looks up the metadata of candidates only the lexical side
// returned, so filters see them. Vector stores that cannot look up by id
// leave those candidates without metadata.
func (f *RankFusion) fillMetadata(ctx context.Context, collection string, merged map[string]*MergedResult) error {
	reader, ok := f.vectors.(store.MetadataReader)
	if !ok {
		return nil
	}
	var missing []string
	for id, m := range merged {
		if m.Metadata == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := reader.Metadata(ctx, collection, missing)
	if err != nil {
		return err
	}
	for id, md := range found {
		merged[id].Metadata = md
	}
	return nil
}

// fuse normalizes both sides over the merged candidates and computes the
// hybrid score. Candidates are visited in id order so ties rank
// deterministically.
func (f *RankFusion) fuse(merged map[string]*MergedResult, useLexical bool) []*HybridResult {
	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lex := make([]ScoredID, len(ids))
	vec := make([]ScoredID, len(ids))
	for i, id := range ids {
		lex[i] = ScoredID{ID: id, Score: merged[id].LexicalScore}
		vec[i] = ScoredID{ID: id, Score: merged[id].VectorScore}
	}
	lexNorm := NormalizeScores(lex)
	vecNorm := NormalizeScores(vec)

	results := make([]*HybridResult, len(ids))
	for i, id := range ids {
		r := &HybridResult{
			ID:          id,
			VectorScore: vecNorm[i].Score,
			Metadata:    merged[id].Metadata,
		}
		if useLexical {
			r.LexicalScore = lexNorm[i].Score
			r.HybridScore = f.CalculateHybridScore(r.LexicalScore, r.VectorScore)
		} else {
			r.HybridScore = r.VectorScore
		}
		results[i] = r
	}
	return results
}
