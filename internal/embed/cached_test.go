package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records the texts it was asked to embed.
type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int   { return 1 }
func (c *countingEmbedder) ModelName() string { return "counting" }
func (c *countingEmbedder) Close() error      { return nil }

func TestCachedEmbedder_OnlyMissesReachInner(t *testing.T) {
	// Given: a cache warmed with "a"
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)

	// When: embedding a batch containing "a" and two new texts
	vecs, err := c.EmbedBatch(context.Background(), []string{"bb", "a", "ccc"})
	require.NoError(t, err)

	// Then: results keep input order and only misses were sent
	assert.Equal(t, [][]float32{{2}, {1}, {3}}, vecs)
	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"bb", "ccc"}, inner.calls[1])
	assert.Equal(t, 3, c.Len())

	// And: a fully cached batch makes no call
	_, err = c.EmbedBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestCachedEmbedder_EvictsOldest(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 2)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingEmbedder{err: boom}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 0)
	assert.Equal(t, 1, c.Dimensions())
	assert.Equal(t, "counting", c.ModelName())
	assert.NoError(t, c.Close())
}
