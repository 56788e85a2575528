package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

const DefaultEmbedBatchSize = 32

var errEmptyDocument = errors.New("document has no extractable text")

// DocumentSource yields the raw text of one document. Extraction is done by
// the caller's format parser, not by the ingest pipeline.
type DocumentSource interface {
	SourceName() string
	ExtractText() (string, error)
}

type IngestConfig struct {
	Collection     string
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

// IngestService loads documents into the vector index. One failing document
// is recorded in the report and does not stop the others.
type IngestService struct {
	embedder ai.Embedder
	index    vectorstore.Index
	cfg      IngestConfig
}

func NewIngestService(embedder ai.Embedder, index vectorstore.Index, cfg IngestConfig) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &IngestService{embedder: embedder, index: index, cfg: cfg}
}

// Ingest returns an error only when the collection cannot be prepared.
func (s *IngestService) Ingest(ctx context.Context, docs []DocumentSource) (*model.IngestReport, error) {
	if err := s.index.EnsureCollection(ctx, s.cfg.Collection, s.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensure collection %s failed: %w", s.cfg.Collection, err)
	}

	report := &model.IngestReport{
		ChunkCounts: make(map[string]int),
		Failures:    []model.IngestFailure{},
	}
	for i, doc := range docs {
		name := doc.SourceName()
		count, err := s.ingestOne(ctx, doc)
		if err != nil {
			log.Printf("ingest %s failed (%d/%d): %v", name, i+1, len(docs), err)
			report.Failures = append(report.Failures, model.IngestFailure{Document: name, Error: err.Error(), Cause: err})
			continue
		}
		report.ChunkCounts[name] = count
		log.Printf("ingested %s (%d/%d): %d chunks", name, i+1, len(docs), count)
	}
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, src DocumentSource) (int, error) {
	text, err := src.ExtractText()
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, errEmptyDocument
	}

	doc := model.Document{
		ID:         DocumentID(src.SourceName()),
		SourceName: src.SourceName(),
		RawText:    text,
	}
	chunks, err := ChunkDocument(doc, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, err
	}

	entries := make([]model.IndexEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return 0, fmt.Errorf("%w: got %d vectors for %d chunks", ai.ErrEmbedding, len(vectors), len(texts))
		}
		for i, vec := range vectors {
			c := chunks[start+i]
			entries = append(entries, model.IndexEntry{
				ChunkID: c.ID,
				Vector:  vec,
				Payload: model.Payload{
					Text:        c.Text,
					Source:      doc.SourceName,
					ChunkIndex:  c.ChunkIndex,
					TotalChunks: c.TotalChunks,
				},
			})
		}
	}

	if err := s.index.Upsert(ctx, s.cfg.Collection, entries); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(entries), nil
}
