package model

import (
	"encoding/json"
	"time"
)

// KnowledgeCollection records the vector dimension of a MySQL-backed collection.
type KnowledgeCollection struct {
	Name      string    `gorm:"primaryKey;size:128" json:"name"`
	Dimension int       `gorm:"not null" json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeChunk stores one index entry. Embedding is a JSON array of float32.
type KnowledgeChunk struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Collection  string    `gorm:"size:128;not null;uniqueIndex:idx_collection_chunk" json:"collection"`
	ChunkID     string    `gorm:"size:64;not null;uniqueIndex:idx_collection_chunk" json:"chunk_id"`
	Source      string    `gorm:"size:512;not null;index" json:"source"`
	ChunkIndex  int       `gorm:"not null" json:"chunk_index"`
	TotalChunks int       `gorm:"not null" json:"total_chunks"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Embedding   string    `gorm:"type:mediumtext" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *KnowledgeChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *KnowledgeChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

// Entry converts the row back into an IndexEntry.
func (c *KnowledgeChunk) Entry() IndexEntry {
	return IndexEntry{
		ChunkID: c.ChunkID,
		Vector:  c.EmbeddingVector(),
		Payload: Payload{
			Text:        c.Content,
			Source:      c.Source,
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: c.TotalChunks,
		},
	}
}
