package memory

import (
	"context"
	"fmt"
	"sync"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

var _ vectorstore.Index = (*Storage)(nil)

// Storage is an in-process vector index using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	batchSize   int
	collections map[string]*collection
}

type collection struct {
	dimension int
	entries   []model.IndexEntry
	positions map[string]int
}

func NewStorage(batchSize int) *Storage {
	if batchSize <= 0 {
		batchSize = vectorstore.DefaultBatchSize
	}
	return &Storage{
		batchSize:   batchSize,
		collections: make(map[string]*collection),
	}
}

func (s *Storage) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d",
				vectorstore.ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return nil
	}
	s.collections[name] = &collection{dimension: dimension, positions: make(map[string]int)}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, entries []model.IndexEntry) error {
	return vectorstore.UpsertInBatches(ctx, entries, s.batchSize, func(_ context.Context, batch []model.IndexEntry) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.collections[name]
		if !ok {
			return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
		}
		// Validate first so a rejected batch leaves nothing behind.
		if err := vectorstore.CheckDimensions(batch, c.dimension); err != nil {
			return err
		}
		for _, e := range batch {
			e.Vector = append([]float32(nil), e.Vector...)
			if pos, ok := c.positions[e.ChunkID]; ok {
				c.entries[pos] = e
				continue
			}
			c.positions[e.ChunkID] = len(c.entries)
			c.entries = append(c.entries, e)
		}
		return nil
	})
}

func (s *Storage) Search(_ context.Context, name string, vector []float32, k int) ([]model.ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), c.dimension)
	}
	return vectorstore.RankTopK(c.entries, vector, k), nil
}

func (s *Storage) Stats(_ context.Context, name string) model.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return vectorstore.UnavailableStats(name)
	}
	return model.IndexStats{
		TotalEntries:   len(c.entries),
		CollectionName: name,
		Status:         vectorstore.StatusReady,
	}
}
