package vectorindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat-ai/docchat/internal/core"
)

func meta(docID string, seq int) core.ChunkMetadata {
	return core.ChunkMetadata{
		DocumentID:    docID,
		ChunkID:       fmt.Sprintf("chunk-%s-%d", docID, seq),
		SequenceIndex: seq,
	}
}

func TestMemoryIndex_SearchReturnsKOrderedByScore(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	// Vectors at decreasing similarity to the query (1, 0).
	vectors := [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0.7, 0.3},
		{0.5, 0.5},
		{0.2, 0.8},
		{0, 1},
	}
	for i, v := range vectors {
		require.NoError(t, idx.Upsert(ctx, fmt.Sprintf("ref-%d", i), v, meta("doc-a", i)))
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	assert.Equal(t, "ref-0", hits[0].VectorRef)
}

func TestMemoryIndex_FilterScopesToDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	require.NoError(t, idx.Upsert(ctx, "a-0", []float32{1, 0}, meta("doc-a", 0)))
	require.NoError(t, idx.Upsert(ctx, "a-1", []float32{0.8, 0.2}, meta("doc-a", 1)))
	require.NoError(t, idx.Upsert(ctx, "b-0", []float32{1, 0}, meta("doc-b", 0)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, &core.SearchFilter{DocumentID: "doc-b"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b-0", hits[0].VectorRef)

	// No filter searches the whole corpus.
	hits, err = idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestMemoryIndex_ReadAfterDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	require.NoError(t, idx.Upsert(ctx, "ref-0", []float32{1, 0}, meta("doc-a", 0)))
	require.NoError(t, idx.Upsert(ctx, "ref-1", []float32{0.9, 0.1}, meta("doc-a", 1)))
	require.NoError(t, idx.Delete(ctx, "ref-0"))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ref-1", hits[0].VectorRef)

	// Re-upsert makes it visible again.
	require.NoError(t, idx.Upsert(ctx, "ref-0", []float32{1, 0}, meta("doc-a", 0)))
	hits, err = idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryIndex_UpsertReplacesFully(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	require.NoError(t, idx.Upsert(ctx, "ref-0", []float32{1, 0}, meta("doc-a", 0)))
	require.NoError(t, idx.Upsert(ctx, "ref-0", []float32{0, 1}, meta("doc-b", 0)))

	// Old metadata is gone: filtering on doc-a finds nothing.
	hits, err := idx.Search(ctx, []float32{1, 0}, 10, &core.SearchFilter{DocumentID: "doc-a"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, []float32{0, 1}, 10, &core.SearchFilter{DocumentID: "doc-b"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestMemoryIndex_TieBrokenByRecency(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	// Identical vectors, identical scores; the most recently upserted
	// must come first.
	require.NoError(t, idx.Upsert(ctx, "older", []float32{1, 0}, meta("doc-a", 0)))
	require.NoError(t, idx.Upsert(ctx, "newer", []float32{1, 0}, meta("doc-a", 1)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "newer", hits[0].VectorRef)
	assert.Equal(t, "older", hits[1].VectorRef)

	// Touching the older one flips the order.
	require.NoError(t, idx.Upsert(ctx, "older", []float32{1, 0}, meta("doc-a", 0)))
	hits, err = idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "older", hits[0].VectorRef)
}

func TestMemoryIndex_RelevanceFloor(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0.9)

	require.NoError(t, idx.Upsert(ctx, "close", []float32{1, 0.01}, meta("doc-a", 0)))
	require.NoError(t, idx.Upsert(ctx, "far", []float32{0, 1}, meta("doc-a", 1)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "close", hits[0].VectorRef)
}

func TestMemoryIndex_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	_, err := idx.Search(ctx, []float32{1, 0}, 0, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, &core.SearchFilter{})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	err = idx.Upsert(ctx, "ref", []float32{1}, core.ChunkMetadata{})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}
