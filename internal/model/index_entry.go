package model

// Payload is stored next to each vector and returned with search hits.
type Payload struct {
	Text        string `json:"text"`
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

type IndexEntry struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"-"`
	Payload Payload   `json:"payload"`
}

// ScoredEntry is an IndexEntry returned by a similarity search.
type ScoredEntry struct {
	IndexEntry
	Score float32 `json:"score"`
}

type IndexStats struct {
	TotalEntries   int    `json:"total_entries"`
	CollectionName string `json:"collection_name"`
	Status         string `json:"status"`
}
