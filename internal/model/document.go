package model

// Document is a source file's extracted text, immutable once ingested.
type Document struct {
	ID         string `json:"id"`
	SourceName string `json:"source_name"`
	RawText    string `json:"-"`
}

type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Text        string `json:"text"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}
