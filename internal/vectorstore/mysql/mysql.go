// Package mysql stores index entries in MySQL through gorm and ranks them with
// a brute-force cosine scan.
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

var _ vectorstore.Index = (*Storage)(nil)

type Storage struct {
	db        *gorm.DB
	batchSize int
}

func NewStorage(db *gorm.DB, batchSize int) *Storage {
	if batchSize <= 0 {
		batchSize = vectorstore.DefaultBatchSize
	}
	return &Storage{db: db, batchSize: batchSize}
}

// Migrate creates the collection and chunk tables.
func (s *Storage) Migrate() error {
	if err := s.db.AutoMigrate(&model.KnowledgeCollection{}, &model.KnowledgeChunk{}); err != nil {
		return fmt.Errorf("auto migrate knowledge tables failed: %w", err)
	}
	return nil
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	coll := model.KnowledgeCollection{Name: name, Dimension: dimension}
	err := s.db.WithContext(ctx).
		Where(model.KnowledgeCollection{Name: name}).
		Attrs(model.KnowledgeCollection{Dimension: dimension}).
		FirstOrCreate(&coll).Error
	if err != nil {
		return fmt.Errorf("%w: ensure collection %s: %v", vectorstore.ErrIndexUnavailable, name, err)
	}
	if coll.Dimension != dimension {
		return fmt.Errorf("%w: collection %s has %d, requested %d",
			vectorstore.ErrDimensionMismatch, name, coll.Dimension, dimension)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, entries []model.IndexEntry) error {
	coll, err := s.collection(ctx, name)
	if err != nil {
		return &vectorstore.PartialUpsertError{Total: len(entries), Err: err}
	}
	return vectorstore.UpsertInBatches(ctx, entries, s.batchSize, func(ctx context.Context, batch []model.IndexEntry) error {
		if err := vectorstore.CheckDimensions(batch, coll.Dimension); err != nil {
			return err
		}
		rows := make([]model.KnowledgeChunk, len(batch))
		for i, e := range batch {
			rows[i] = model.KnowledgeChunk{
				Collection:  name,
				ChunkID:     e.ChunkID,
				Source:      e.Payload.Source,
				ChunkIndex:  e.Payload.ChunkIndex,
				TotalChunks: e.Payload.TotalChunks,
				Content:     e.Payload.Text,
			}
			rows[i].SetEmbedding(e.Vector)
		}
		// One transaction per batch: either every row lands or none does.
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return upsertChunks(tx, rows).Error
		})
		if err != nil {
			return fmt.Errorf("%w: upsert knowledge chunks: %v", vectorstore.ErrIndexUnavailable, err)
		}
		return nil
	})
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]model.ScoredEntry, error) {
	coll, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != coll.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), coll.Dimension)
	}
	var rows []model.KnowledgeChunk
	if err := listChunks(s.db.WithContext(ctx), name, &rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list knowledge chunks: %v", vectorstore.ErrIndexUnavailable, err)
	}
	entries := make([]model.IndexEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].Entry()
	}
	return vectorstore.RankTopK(entries, vector, k), nil
}

// upsertChunks inserts rows, replacing any row with the same collection and
// chunk ID (unique index idx_collection_chunk).
func upsertChunks(tx *gorm.DB, rows []model.KnowledgeChunk) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source", "chunk_index", "total_chunks", "content", "embedding", "updated_at",
		}),
	}).Create(&rows)
}

// listChunks loads a collection in insertion order so equal scores keep it.
func listChunks(tx *gorm.DB, name string, rows *[]model.KnowledgeChunk) *gorm.DB {
	return tx.Where("collection = ?", name).Order("id ASC").Find(rows)
}

func (s *Storage) Stats(ctx context.Context, name string) model.IndexStats {
	if _, err := s.collection(ctx, name); err != nil {
		return vectorstore.UnavailableStats(name)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.KnowledgeChunk{}).Where("collection = ?", name).Count(&count).Error; err != nil {
		return vectorstore.UnavailableStats(name)
	}
	return model.IndexStats{
		TotalEntries:   int(count),
		CollectionName: name,
		Status:         vectorstore.StatusReady,
	}
}

func (s *Storage) collection(ctx context.Context, name string) (*model.KnowledgeCollection, error) {
	var coll model.KnowledgeCollection
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&coll).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("%w: get collection %s: %v", vectorstore.ErrIndexUnavailable, name, err)
	}
	return &coll, nil
}
