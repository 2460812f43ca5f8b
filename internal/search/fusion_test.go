package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/store"
)

// --- Test Helpers ---

type fakeLexical struct {
	store.LexicalIndex

	mu      sync.Mutex
	results []*store.LexicalResult
	err     error
	calls   int
	topK    int
}

func (f *fakeLexical) Search(_ context.Context, _ string, topK int) ([]*store.LexicalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.topK = topK
	return f.results, f.err
}

type fakeVectors struct {
	store.VectorStore

	results []*store.VectorResult
	err     error
	topK    int
}

func (f *fakeVectors) Query(_ context.Context, _ string, _ []float32, topK int, _ map[string]any) ([]*store.VectorResult, error) {
	f.topK = topK
	return f.results, f.err
}

// indexedVectors also answers metadata lookups by id.
type indexedVectors struct {
	fakeVectors
	metadata map[string]map[string]any
	asked    []string
}

func (f *indexedVectors) Metadata(_ context.Context, _ string, ids []string) (map[string]map[string]any, error) {
	f.asked = append(f.asked, ids...)
	out := make(map[string]map[string]any)
	for _, id := range ids {
		if md, ok := f.metadata[id]; ok {
			out[id] = md
		}
	}
	return out, nil
}

func newTestFusion(t *testing.T, alpha float64, lex *fakeLexical, vec *fakeVectors) *RankFusion {
	t.Helper()
	f, err := NewRankFusion(lex, vec, alpha)
	require.NoError(t, err)
	return f
}

func vecResult(id string, score float64, fileType, language string) *store.VectorResult {
	return &store.VectorResult{
		ID:    id,
		Score: score,
		Metadata: map[string]any{
			"fileType": fileType,
			"language": language,
			"type":     "function",
		},
	}
}

func scoresByID(results []*HybridResult) map[string]float64 {
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.ID] = r.HybridScore
	}
	return out
}

// --- Alpha ---

func TestNewRankFusion_ValidatesAlpha(t *testing.T) {
	for _, alpha := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		t.Run(fmt.Sprint(alpha), func(t *testing.T) {
			_, err := NewRankFusion(nil, nil, alpha)

			assert.Equal(t, herrors.ErrCodeInvalidAlpha, herrors.GetCode(err))
			assert.True(t, herrors.IsValidation(err))
		})
	}
}

func TestRankFusion_SetAlpha(t *testing.T) {
	// Given: a fusion with alpha 0.5
	f := newTestFusion(t, 0.5, &fakeLexical{}, &fakeVectors{})

	// When/Then: out-of-range values are rejected and leave alpha unchanged
	assert.Error(t, f.SetAlpha(-0.1))
	assert.Error(t, f.SetAlpha(1.1))
	assert.Equal(t, 0.5, f.Alpha())

	// And: the bounds themselves are accepted
	require.NoError(t, f.SetAlpha(0))
	assert.Equal(t, 0.0, f.Alpha())
	require.NoError(t, f.SetAlpha(1))
	assert.Equal(t, 1.0, f.Alpha())
}

func TestRankFusion_CalculateHybridScore(t *testing.T) {
	f := newTestFusion(t, 0.3, &fakeLexical{}, &fakeVectors{})

	assert.InDelta(t, 0.66, f.CalculateHybridScore(0.8, 0.6), 1e-6)
}

// --- Normalization ---

func TestNormalizeScores(t *testing.T) {
	tests := []struct {
		name string
		in   []ScoredID
		want []ScoredID
	}{
		{"empty", []ScoredID{}, []ScoredID{}},
		{"nil", nil, []ScoredID{}},
		{"single", []ScoredID{{"a", 5}}, []ScoredID{{"a", 1}}},
		{"all equal", []ScoredID{{"a", 3}, {"b", 3}}, []ScoredID{{"a", 1}, {"b", 1}}},
		{"min max", []ScoredID{{"a", 5}, {"b", 10}, {"c", 2.5}}, []ScoredID{{"a", 1.0 / 3}, {"b", 1}, {"c", 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeScores(tt.in)

			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].ID, got[i].ID)
				assert.InDelta(t, tt.want[i].Score, got[i].Score, 1e-9)
			}
		})
	}
}

func TestNormalizeScores_DoesNotModifyInput(t *testing.T) {
	in := []ScoredID{{"a", 2}, {"b", 4}}

	_ = NormalizeScores(in)

	assert.Equal(t, []ScoredID{{"a", 2}, {"b", 4}}, in)
}

// --- Merge ---

func TestMergeResults_Disjoint(t *testing.T) {
	// Given: lexical and vector results with no shared ids
	lex := []*store.LexicalResult{{DocumentID: "a", Score: 2}}
	vec := []*store.VectorResult{vecResult("b", 0.9, "go", "go")}

	// When: merging
	merged := MergeResults(lex, vec)

	// Then: the union has the missing side at 0
	require.Len(t, merged, 2)
	assert.Equal(t, 2.0, merged["a"].LexicalScore)
	assert.Zero(t, merged["a"].VectorScore)
	assert.Nil(t, merged["a"].Metadata)
	assert.Zero(t, merged["b"].LexicalScore)
	assert.Equal(t, 0.9, merged["b"].VectorScore)
	assert.Equal(t, "go", merged["b"].Metadata["fileType"])
}

func TestMergeResults_Overlap(t *testing.T) {
	lex := []*store.LexicalResult{{DocumentID: "a", Score: 2}}
	vec := []*store.VectorResult{vecResult("a", 0.4, "py", "python")}

	merged := MergeResults(lex, vec)

	require.Len(t, merged, 1)
	assert.Equal(t, &MergedResult{
		ID:           "a",
		LexicalScore: 2,
		VectorScore:  0.4,
		Metadata:     vec[0].Metadata,
	}, merged["a"])
}

// --- Filter ---

func filterFixture() []*HybridResult {
	return []*HybridResult{
		{ID: "/src/a.go:1", Metadata: map[string]any{"fileType": "go", "language": "go", "type": "function", "project_id": "p1"}},
		{ID: "/src/b.py:3", Metadata: map[string]any{"fileType": "py", "language": "python", "type": "class", "project_id": "p1"}},
		{ID: "/docs/c.md:1", Metadata: map[string]any{"fileType": "md", "language": "markdown", "type": "heading", "project_id": "p2"}},
		{ID: "/src/lexical-only.go:9"},
	}
}

func resultIDs(results []*HybridResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestFilterResults(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		want   []string
	}{
		{"nil filter", nil, []string{"/src/a.go:1", "/src/b.py:3", "/docs/c.md:1", "/src/lexical-only.go:9"}},
		{"empty filter", &Filter{}, []string{"/src/a.go:1", "/src/b.py:3", "/docs/c.md:1", "/src/lexical-only.go:9"}},
		{"file types", &Filter{FileTypes: []string{"go", "md"}}, []string{"/src/a.go:1", "/docs/c.md:1"}},
		{"languages", &Filter{Languages: []string{"python"}}, []string{"/src/b.py:3"}},
		{"path pattern", &Filter{PathPattern: "/src/"}, []string{"/src/a.go:1", "/src/b.py:3", "/src/lexical-only.go:9"}},
		{"file types and path", &Filter{FileTypes: []string{"go", "md"}, PathPattern: "/src/"}, []string{"/src/a.go:1"}},
		{"symbol types", &Filter{SymbolTypes: []string{"class", "heading"}}, []string{"/src/b.py:3", "/docs/c.md:1"}},
		{"project", &Filter{ProjectID: "p2"}, []string{"/docs/c.md:1"}},
		{"no match", &Filter{Languages: []string{"rust"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterResults(filterFixture(), tt.filter)

			assert.Equal(t, tt.want, resultIDs(got))
		})
	}
}

func TestFilterResults_IntersectionNeverSuperset(t *testing.T) {
	// Given: two single-criterion filters
	byType := FilterResults(filterFixture(), &Filter{FileTypes: []string{"go", "py"}})
	byPath := FilterResults(filterFixture(), &Filter{PathPattern: "b.py"})

	// When: combining them
	both := FilterResults(filterFixture(), &Filter{FileTypes: []string{"go", "py"}, PathPattern: "b.py"})

	// Then: every combined result passes each single filter
	for _, id := range resultIDs(both) {
		assert.Contains(t, resultIDs(byType), id)
		assert.Contains(t, resultIDs(byPath), id)
	}
	assert.LessOrEqual(t, len(both), min(len(byType), len(byPath)))
}

// --- Rank ---

func TestRankResults(t *testing.T) {
	results := []*HybridResult{
		{ID: "a", HybridScore: 0.2},
		{ID: "b", HybridScore: 0.9},
		{ID: "c", HybridScore: 0.5},
		{ID: "d", HybridScore: 0.5},
	}

	t.Run("sorted and stable", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c", "d", "a"}, resultIDs(RankResults(results, 0)))
	})
	t.Run("truncated", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c"}, resultIDs(RankResults(results, 2)))
	})
	t.Run("topK above length", func(t *testing.T) {
		assert.Len(t, RankResults(results, 10), 4)
	})
	t.Run("input untouched", func(t *testing.T) {
		assert.Equal(t, "a", results[0].ID)
	})
}

// --- Search ---

func TestRankFusion_Search_Hybrid(t *testing.T) {
	// Given: overlapping lexical and vector candidates
	lex := &fakeLexical{results: []*store.LexicalResult{
		{DocumentID: "a", Score: 4},
		{DocumentID: "b", Score: 2},
	}}
	vec := &fakeVectors{results: []*store.VectorResult{
		vecResult("b", 0.9, "go", "go"),
		vecResult("c", 0.5, "go", "go"),
	}}
	f := newTestFusion(t, 0.5, lex, vec)

	// When: searching
	results, err := f.Search(context.Background(), "code", "parse config", []float32{1}, 3, nil)
	require.NoError(t, err)

	// Then: both sides fetched topK*2 candidates
	assert.Equal(t, 6, lex.topK)
	assert.Equal(t, 6, vec.topK)

	// And: scores blend the independently normalized sides
	// lexical over {a:4, b:2, c:0} -> {1, 0.5, 0}; vector over {a:0, b:0.9, c:0.5} -> {0, 1, 0.556}
	scores := scoresByID(results)
	assert.InDelta(t, 0.5, scores["a"], 1e-9)
	assert.InDelta(t, 0.75, scores["b"], 1e-9)
	assert.InDelta(t, 0.5*0.5/0.9, scores["c"], 1e-9)
	assert.Equal(t, "b", results[0].ID)
}

func TestRankFusion_Search_EmptyQueryIsVectorOnly(t *testing.T) {
	// Given: vector candidates and a lexical index that must not be used
	lex := &fakeLexical{results: []*store.LexicalResult{{DocumentID: "x", Score: 9}}}
	vec := &fakeVectors{results: []*store.VectorResult{
		vecResult("a", 0.8, "go", "go"),
		vecResult("b", 0.4, "go", "go"),
	}}
	f := newTestFusion(t, 0.7, lex, vec)

	// When: searching with an empty query
	results, err := f.Search(context.Background(), "code", "", []float32{1}, 5, nil)
	require.NoError(t, err)

	// Then: lexical is skipped and the hybrid score is the vector score
	assert.Zero(t, lex.calls)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 1.0, results[0].HybridScore)
	assert.Equal(t, 0.0, results[1].HybridScore)
	assert.Zero(t, results[0].LexicalScore)
}

func TestRankFusion_Search_FiltersAndTruncates(t *testing.T) {
	vec := &fakeVectors{results: []*store.VectorResult{
		vecResult("/a.go:1", 0.9, "go", "go"),
		vecResult("/b.py:1", 0.8, "py", "python"),
		vecResult("/c.go:1", 0.7, "go", "go"),
		vecResult("/d.go:1", 0.1, "go", "go"),
	}}
	f := newTestFusion(t, 0.5, &fakeLexical{}, vec)

	results, err := f.Search(context.Background(), "code", "", []float32{1}, 2, &Filter{FileTypes: []string{"go"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"/a.go:1", "/c.go:1"}, resultIDs(results))
}

func TestRankFusion_Search_FilterKeepsLexicalOnlyHits(t *testing.T) {
	// Given: a lexical hit the vector query did not return
	lex := &fakeLexical{results: []*store.LexicalResult{{DocumentID: "/zoo.md:1", Score: 3}}}
	vec := &indexedVectors{
		fakeVectors: fakeVectors{results: []*store.VectorResult{
			{ID: "/other.go:4", Score: 0.9, Metadata: map[string]any{"project_id": "p", "language": "go"}},
		}},
		metadata: map[string]map[string]any{
			"/zoo.md:1": {"project_id": "p", "language": "markdown", "fileType": "md"},
		},
	}
	f, err := NewRankFusion(lex, vec, 0.7)
	require.NoError(t, err)

	// When: searching within the project and language
	results, err := f.Search(context.Background(), "code", "zebra", []float32{1}, 5,
		&Filter{ProjectID: "p", Languages: []string{"markdown"}})
	require.NoError(t, err)

	// Then: the lexical-only hit survives with its metadata
	require.Len(t, results, 1)
	assert.Equal(t, "/zoo.md:1", results[0].ID)
	assert.Equal(t, "markdown", results[0].Metadata["language"])
	assert.InDelta(t, 0.7, results[0].HybridScore, 1e-9)
	assert.Equal(t, []string{"/zoo.md:1"}, vec.asked)
}

func TestRankFusion_Search_UnknownLexicalIDIsFiltered(t *testing.T) {
	// Given: a lexical id with no vector record
	lex := &fakeLexical{results: []*store.LexicalResult{{DocumentID: "/gone.go:1", Score: 3}}}
	f, err := NewRankFusion(lex, &indexedVectors{}, 0.5)
	require.NoError(t, err)

	// When: searching with a project filter
	results, err := f.Search(context.Background(), "code", "gone", []float32{1}, 5, &Filter{ProjectID: "p"})

	// Then: the hit has nothing to match and is dropped
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRankFusion_Search_InvalidTopK(t *testing.T) {
	f := newTestFusion(t, 0.5, &fakeLexical{}, &fakeVectors{})

	_, err := f.Search(context.Background(), "code", "q", []float32{1}, 0, nil)

	assert.Equal(t, herrors.ErrCodeInvalidQuery, herrors.GetCode(err))
}

func TestRankFusion_Search_VectorErrorPropagates(t *testing.T) {
	// Given: a vector store without the collection
	vec := &fakeVectors{err: fmt.Errorf("missing: %w", store.ErrCollectionNotFound)}
	f := newTestFusion(t, 0.5, &fakeLexical{}, vec)

	// When: searching
	_, err := f.Search(context.Background(), "nope", "q", []float32{1}, 3, nil)

	// Then: the store error comes back unchanged
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
	assert.Equal(t, vec.err, err)
}

func TestRankFusion_Search_LexicalError(t *testing.T) {
	lexErr := errors.New("disk gone")
	f := newTestFusion(t, 0.5, &fakeLexical{err: lexErr}, &fakeVectors{})

	_, err := f.Search(context.Background(), "code", "q", []float32{1}, 3, nil)

	assert.ErrorIs(t, err, lexErr)
}

func TestRankFusion_Search_RealStores(t *testing.T) {
	// Given: a SQLite lexical index and an HNSW store holding the same documents
	ctx := context.Background()
	lexical, err := store.NewSQLiteBM25Index(filepath.Join(t.TempDir(), "bm25.db"), store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })
	vectors := store.NewHNSWStore(store.HNSWConfig{})
	require.NoError(t, vectors.CreateCollection(ctx, "code", 2))

	docs := map[string]struct {
		text string
		vec  []float32
	}{
		"/a.go:1": {"parse configuration file", []float32{1, 0}},
		"/b.go:1": {"render html template", []float32{0, 1}},
	}
	for id, d := range docs {
		require.NoError(t, lexical.IndexDocument(ctx, id, d.text))
		require.NoError(t, vectors.Upsert(ctx, "code", []store.VectorRecord{{
			ID: id, Vector: d.vec, Metadata: map[string]any{"fileType": "go"},
		}}))
	}
	f, err := NewRankFusion(lexical, vectors, 0.5)
	require.NoError(t, err)

	// When: searching for a term in the first document with its vector
	results, err := f.Search(ctx, "code", "configuration", []float32{1, 0}, 2, nil)
	require.NoError(t, err)

	// Then: it ranks first with both components at 1
	require.NotEmpty(t, results)
	assert.Equal(t, "/a.go:1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].HybridScore, 1e-9)

	// And: deleted documents can no longer be found lexically
	require.NoError(t, lexical.DeleteDocument(ctx, "/a.go:1"))
	hits, err := lexical.Search(ctx, "parse configuration", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
