package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

func entry(id string, vec ...float32) model.IndexEntry {
	return model.IndexEntry{ChunkID: id, Vector: vec, Payload: model.Payload{Text: "text " + id, Source: "doc.pdf"}}
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(0)

	require.NoError(t, s.EnsureCollection(ctx, "kb", 3))
	require.NoError(t, s.EnsureCollection(ctx, "kb", 3), "must be idempotent")

	err := s.EnsureCollection(ctx, "kb", 4)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestUpsertReplacesByChunkID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(0)
	require.NoError(t, s.EnsureCollection(ctx, "kb", 2))

	require.NoError(t, s.Upsert(ctx, "kb", []model.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)}))
	require.NoError(t, s.Upsert(ctx, "kb", []model.IndexEntry{entry("a", 0, 1)}))

	stats := s.Stats(ctx, "kb")
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, vectorstore.StatusReady, stats.Status)

	hits, err := s.Search(ctx, "kb", []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// a was overwritten in place, so it still precedes b on a tie.
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "b", hits[1].ChunkID)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(2)
	require.NoError(t, s.EnsureCollection(ctx, "kb", 2))

	err := s.Upsert(ctx, "kb", []model.IndexEntry{
		entry("a", 1, 0), entry("b", 0, 1), // batch 1 commits
		entry("c", 1, 0), entry("d", 1), // batch 2 is rejected as a whole
	})
	var partial *vectorstore.PartialUpsertError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Committed)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Equal(t, 2, s.Stats(ctx, "kb").TotalEntries)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(0)

	_, err := s.Search(ctx, "missing", []float32{1, 0}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	require.NoError(t, s.EnsureCollection(ctx, "kb", 2))
	hits, err := s.Search(ctx, "kb", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Upsert(ctx, "kb", []model.IndexEntry{
		entry("far", -1, 0), entry("near", 1, 0.1), entry("mid", 1, 1),
	}))
	hits, err = s.Search(ctx, "kb", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ChunkID)
	assert.Equal(t, "mid", hits[1].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "text near", hits[0].Payload.Text)
}

func TestStatsMissingCollection(t *testing.T) {
	stats := NewStorage(0).Stats(context.Background(), "kb")
	assert.Equal(t, vectorstore.StatusUnavailable, stats.Status)
	assert.Equal(t, "kb", stats.CollectionName)
}
