// Package chromem backs the vector index with an embedded chromem-go database,
// persisted to disk when a path is configured.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

var _ vectorstore.Index = (*Storage)(nil)

type Storage struct {
	db        *chromem.DB
	batchSize int

	mu         sync.Mutex
	dimensions map[string]int
}

// NewStorage opens a persistent database at path, or an in-memory one when path is empty.
func NewStorage(path string, compress bool, batchSize int) (*Storage, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db failed: %w", err)
		}
	}
	if batchSize <= 0 {
		batchSize = vectorstore.DefaultBatchSize
	}
	return &Storage{db: db, batchSize: batchSize, dimensions: make(map[string]int)}, nil
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if known, ok := s.dimensions[name]; ok {
		if known != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d",
				vectorstore.ErrDimensionMismatch, name, known, dimension)
		}
		return nil
	}

	coll := s.db.GetCollection(name, nil)
	if coll == nil {
		metadata := map[string]string{"dimension": strconv.Itoa(dimension)}
		if _, err := s.db.CreateCollection(name, metadata, nil); err != nil {
			return fmt.Errorf("create chromem collection %s failed: %w", name, err)
		}
		s.dimensions[name] = dimension
		return nil
	}
	return s.confirmDimensionLocked(ctx, name, coll, dimension)
}

// confirmDimensionLocked records dimension for a collection this process did
// not create. chromem-go keeps collection metadata unexported, so a non-empty
// collection is checked by querying it with a vector of that size.
func (s *Storage) confirmDimensionLocked(ctx context.Context, name string, coll *chromem.Collection, dimension int) error {
	if coll.Count() > 0 {
		sample := make([]float32, dimension)
		sample[0] = 1
		if _, err := coll.QueryEmbedding(ctx, sample, 1, nil, nil); err != nil {
			return fmt.Errorf("%w: collection %s rejects %d-dimensional vectors: %v",
				vectorstore.ErrDimensionMismatch, name, dimension, err)
		}
	}
	s.dimensions[name] = dimension
	return nil
}

// dimension returns the vector size of a collection, confirming candidate
// against stored vectors when the collection was opened from disk.
func (s *Storage) dimension(ctx context.Context, name string, coll *chromem.Collection, candidate int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if known, ok := s.dimensions[name]; ok {
		return known, nil
	}
	if candidate <= 0 {
		return 0, fmt.Errorf("%w: empty vector", vectorstore.ErrDimensionMismatch)
	}
	if err := s.confirmDimensionLocked(ctx, name, coll, candidate); err != nil {
		return 0, err
	}
	return candidate, nil
}

func (s *Storage) Upsert(ctx context.Context, name string, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	coll, err := s.collection(name)
	if err != nil {
		return &vectorstore.PartialUpsertError{Total: len(entries), Err: err}
	}
	dimension, err := s.dimension(ctx, name, coll, len(entries[0].Vector))
	if err != nil {
		return &vectorstore.PartialUpsertError{Total: len(entries), Err: err}
	}
	return vectorstore.UpsertInBatches(ctx, entries, s.batchSize, func(ctx context.Context, batch []model.IndexEntry) error {
		if err := vectorstore.CheckDimensions(batch, dimension); err != nil {
			return err
		}
		docs := make([]chromem.Document, len(batch))
		for i, e := range batch {
			docs[i] = chromem.Document{
				ID:        e.ChunkID,
				Embedding: append([]float32(nil), e.Vector...),
				Content:   e.Payload.Text,
				Metadata: map[string]string{
					"source":       e.Payload.Source,
					"chunk_index":  strconv.Itoa(e.Payload.ChunkIndex),
					"total_chunks": strconv.Itoa(e.Payload.TotalChunks),
				},
			}
		}
		if err := coll.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("%w: add chromem documents: %v", vectorstore.ErrIndexUnavailable, err)
		}
		return nil
	})
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]model.ScoredEntry, error) {
	coll, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	n := coll.Count()
	if k > n {
		k = n
	}
	if k <= 0 {
		return []model.ScoredEntry{}, nil
	}
	dimension, err := s.dimension(ctx, name, coll, len(vector))
	if err != nil {
		return nil, err
	}
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), dimension)
	}
	results, err := coll.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query chromem collection: %v", vectorstore.ErrIndexUnavailable, err)
	}
	out := make([]model.ScoredEntry, len(results))
	for i, r := range results {
		chunkIndex, _ := strconv.Atoi(r.Metadata["chunk_index"])
		totalChunks, _ := strconv.Atoi(r.Metadata["total_chunks"])
		out[i] = model.ScoredEntry{
			IndexEntry: model.IndexEntry{
				ChunkID: r.ID,
				Payload: model.Payload{
					Text:        r.Content,
					Source:      r.Metadata["source"],
					ChunkIndex:  chunkIndex,
					TotalChunks: totalChunks,
				},
			},
			Score: r.Similarity,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Storage) Stats(_ context.Context, name string) model.IndexStats {
	coll := s.db.GetCollection(name, nil)
	if coll == nil {
		return vectorstore.UnavailableStats(name)
	}
	return model.IndexStats{
		TotalEntries:   coll.Count(),
		CollectionName: name,
		Status:         vectorstore.StatusReady,
	}
}

func (s *Storage) collection(name string) (*chromem.Collection, error) {
	coll := s.db.GetCollection(name, nil)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	return coll, nil
}
