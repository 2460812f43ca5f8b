package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T, dim int) *HNSWStore {
	t.Helper()
	s := NewHNSWStore(HNSWConfig{})
	require.NoError(t, s.CreateCollection(context.Background(), "code", dim))
	return s
}

func TestHNSWStore_CreateCollection_Duplicate(t *testing.T) {
	s := newTestHNSW(t, 3)

	err := s.CreateCollection(context.Background(), "code", 3)

	assert.ErrorIs(t, err, ErrCollectionExists)
}

func TestHNSWStore_UpsertAndQuery(t *testing.T) {
	// Given: three orthogonal-ish vectors
	ctx := context.Background()
	s := newTestHNSW(t, 3)
	require.NoError(t, s.Upsert(ctx, "code", []VectorRecord{
		{ID: "x", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"language": "go"}},
		{ID: "y", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"language": "python"}},
		{ID: "z", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"language": "go"}},
	}))

	// When: querying near x
	results, err := s.Query(ctx, "code", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)

	// Then: x then z, with metadata attached
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, "z", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "go", results[0].Metadata["language"])
}

func TestHNSWStore_Query_Filter(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t, 2)
	require.NoError(t, s.Upsert(ctx, "code", []VectorRecord{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"project_id": "p1", "line_start": 3}},
		{ID: "b", Vector: []float32{1, 0.1}, Metadata: map[string]any{"project_id": "p2", "line_start": 3}},
	}))

	results, err := s.Query(ctx, "code", []float32{1, 0}, 10, map[string]any{"project_id": "p2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	// Numeric values match across integer types
	results, err = s.Query(ctx, "code", []float32{1, 0}, 10, map[string]any{"line_start": int64(3)})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestHNSWStore_UpsertReplacesAndDeleteHides(t *testing.T) {
	// Given: a record replaced once and another deleted
	ctx := context.Background()
	s := newTestHNSW(t, 2)
	require.NoError(t, s.Upsert(ctx, "code", []VectorRecord{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}))
	require.NoError(t, s.Upsert(ctx, "code", []VectorRecord{{ID: "a", Vector: []float32{0, 1}}}))
	require.NoError(t, s.Delete(ctx, "code", []string{"b", "unknown"}))

	// When: querying
	results, err := s.Query(ctx, "code", []float32{0, 1}, 10, nil)
	require.NoError(t, err)

	// Then: only the replaced a is live
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 1, s.Count("code"))
	assert.Equal(t, HNSWStats{ValidIDs: 1, GraphNodes: 3, Orphans: 2}, s.Stats("code"))
}

func TestHNSWStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t, 2)

	_, err := s.Query(ctx, "missing", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	err = s.Upsert(ctx, "code", []VectorRecord{{ID: "a", Vector: []float32{1, 0, 0}}})
	var dim ErrDimensionMismatch
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 2, dim.Expected)

	assert.ErrorIs(t, s.DeleteCollection(ctx, "missing"), ErrCollectionNotFound)
	require.NoError(t, s.DeleteCollection(ctx, "code"))
	_, err = s.Query(ctx, "code", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.CreateCollection(ctx, "code", 2), ErrStorageNotReady)
}

func TestHNSWStore_SaveAndLoad(t *testing.T) {
	// Given: a store with live, replaced and deleted records plus an empty collection
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestHNSW(t, 2)
	require.NoError(t, s.CreateCollection(ctx, "empty", 2))
	require.NoError(t, s.Upsert(ctx, "code", []VectorRecord{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"name": "Alpha", "line_start": 10}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]any{"name": "Beta"}},
	}))
	require.NoError(t, s.Delete(ctx, "code", []string{"b"}))

	// When: saving and loading into a fresh store
	require.NoError(t, s.Save(dir))
	loaded := NewHNSWStore(HNSWConfig{})
	require.NoError(t, loaded.Load(dir))

	// Then: live data and metadata survive, orphans were compacted
	results, err := loaded.Query(ctx, "code", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "Alpha", results[0].Metadata["name"])
	assert.Equal(t, 10, results[0].Metadata["line_start"])
	assert.Equal(t, 0, loaded.Stats("code").Orphans)
	assert.Equal(t, 0, loaded.Count("empty"))
	assert.ErrorIs(t, loaded.CreateCollection(ctx, "empty", 2), ErrCollectionExists)
}

func TestHNSWStore_Load_MissingDir(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{})
	require.NoError(t, s.Load(t.TempDir()+"/nope"))
	assert.Equal(t, 0, s.Count("code"))
}
