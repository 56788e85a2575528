// Package vectorstore defines the vector index contract shared by the
// memory, qdrant, mysql and chromem backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"lean-assistant/internal/model"
)

// DefaultBatchSize bounds the number of entries sent to a backend per upsert call.
const DefaultBatchSize = 100

const (
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)

var (
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Index persists chunk vectors with their payloads and answers k-nearest-neighbour queries.
type Index interface {
	// EnsureCollection creates the collection if absent. It fails with
	// ErrDimensionMismatch when the collection exists with another dimension.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces entries by chunk ID in batches. Each batch is
	// atomic; a failed batch returns *PartialUpsertError and keeps earlier batches.
	Upsert(ctx context.Context, collection string, entries []model.IndexEntry) error

	// Search returns at most k entries ordered by descending cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]model.ScoredEntry, error)

	// Stats never fails; problems are reported as StatusUnavailable.
	Stats(ctx context.Context, collection string) model.IndexStats
}

// PartialUpsertError reports how many entries were committed before a batch failed.
type PartialUpsertError struct {
	Committed int
	Total     int
	Err       error
}

func (e *PartialUpsertError) Error() string {
	return fmt.Sprintf("upsert stopped after %d of %d entries: %v", e.Committed, e.Total, e.Err)
}

func (e *PartialUpsertError) Unwrap() error { return e.Err }

// UpsertInBatches splits entries into batches of size and calls write for each,
// stopping at the first failure.
func UpsertInBatches(
	ctx context.Context,
	entries []model.IndexEntry,
	size int,
	write func(ctx context.Context, batch []model.IndexEntry) error,
) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	committed := 0
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		if err := ctx.Err(); err != nil {
			return &PartialUpsertError{Committed: committed, Total: len(entries), Err: err}
		}
		if err := write(ctx, entries[i:end]); err != nil {
			return &PartialUpsertError{Committed: committed, Total: len(entries), Err: err}
		}
		committed = end
	}
	return nil
}

// CheckDimensions rejects any entry whose vector length differs from dimension.
func CheckDimensions(entries []model.IndexEntry, dimension int) error {
	for _, e := range entries {
		if len(e.Vector) != dimension {
			return fmt.Errorf("%w: entry %s has %d, collection expects %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), dimension)
		}
	}
	return nil
}

// CosineSimilarity returns 0 for empty, zero or mismatched vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// RankTopK scores entries against query and keeps the k best. Entries must be
// in insertion order; equal scores keep that order.
func RankTopK(entries []model.IndexEntry, query []float32, k int) []model.ScoredEntry {
	if k <= 0 || len(entries) == 0 {
		return []model.ScoredEntry{}
	}
	scored := make([]model.ScoredEntry, len(entries))
	for i := range entries {
		scored[i] = model.ScoredEntry{
			IndexEntry: entries[i],
			Score:      CosineSimilarity(query, entries[i].Vector),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// UnavailableStats is the Stats result for a failed lookup.
func UnavailableStats(collection string) model.IndexStats {
	return model.IndexStats{CollectionName: collection, Status: StatusUnavailable}
}
