package app

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"lean-assistant/internal/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkText splits text into windows [start, start+chunkSize) over runes,
// advancing start by chunkSize-overlap until it reaches the end of the text.
// Windows running past the end are cut short, so the tail may be covered by
// more than one short chunk. Empty text yields no chunks.
func ChunkText(text string, chunkSize, overlap int) ([]string, error) {
	if overlap <= 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkParams, chunkSize, overlap)
	}
	runes := []rune(text)
	step := chunkSize - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}

// ChunkDocument chunks doc.RawText and assigns stable chunk IDs.
func ChunkDocument(doc model.Document, chunkSize, overlap int) ([]model.Chunk, error) {
	texts, err := ChunkText(doc.RawText, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.Chunk{
			ID:          ChunkID(doc.SourceName, i),
			DocumentID:  doc.ID,
			Text:        text,
			ChunkIndex:  i,
			TotalChunks: len(texts),
		}
	}
	return chunks, nil
}

// ChunkID is md5_hex("<source>_<index>"), so re-ingesting a source overwrites its chunks.
func ChunkID(sourceName string, index int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", sourceName, index)))
	return hex.EncodeToString(sum[:])
}

// DocumentID identifies a document by its source name.
func DocumentID(sourceName string) string {
	sum := md5.Sum([]byte(sourceName))
	return hex.EncodeToString(sum[:])
}
