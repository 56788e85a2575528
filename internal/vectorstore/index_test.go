package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lean-assistant/internal/model"
)

func entry(id string, vec ...float32) model.IndexEntry {
	return model.IndexEntry{ChunkID: id, Vector: vec}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestRankTopK(t *testing.T) {
	entries := []model.IndexEntry{
		entry("a", 0, 1),
		entry("b", 1, 0),
		entry("c", 1, 1),
		entry("d", 1, 0),
	}

	t.Run("descending and bounded", func(t *testing.T) {
		got := RankTopK(entries, []float32{1, 0}, 3)
		require.Len(t, got, 3)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		got := RankTopK(entries, []float32{1, 0}, 2)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ChunkID)
		assert.Equal(t, "d", got[1].ChunkID)
	})

	t.Run("k larger than entries", func(t *testing.T) {
		assert.Len(t, RankTopK(entries, []float32{1, 0}, 10), 4)
	})

	t.Run("non-positive k", func(t *testing.T) {
		assert.Empty(t, RankTopK(entries, []float32{1, 0}, 0))
	})
}

func TestUpsertInBatches(t *testing.T) {
	entries := make([]model.IndexEntry, 250)
	for i := range entries {
		entries[i] = entry("x", 1)
	}

	t.Run("splits into bounded batches", func(t *testing.T) {
		var sizes []int
		err := UpsertInBatches(context.Background(), entries, 100, func(_ context.Context, b []model.IndexEntry) error {
			sizes = append(sizes, len(b))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{100, 100, 50}, sizes)
	})

	t.Run("reports committed entries on failure", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := UpsertInBatches(context.Background(), entries, 100, func(_ context.Context, _ []model.IndexEntry) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		})
		var partial *PartialUpsertError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, 100, partial.Committed)
		assert.Equal(t, 250, partial.Total)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})
}

func TestCheckDimensions(t *testing.T) {
	require.NoError(t, CheckDimensions([]model.IndexEntry{entry("a", 1, 2)}, 2))
	err := CheckDimensions([]model.IndexEntry{entry("a", 1, 2), entry("b", 1)}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
