package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

// AnswerCache stores succeeded answers per normalised query. Invalidate drops
// every cached answer, e.g. after new knowledge is ingested.
type AnswerCache interface {
	Get(ctx context.Context, query string) (*model.SynthesisResult, bool, error)
	Set(ctx context.Context, query string, result *model.SynthesisResult) error
	Invalidate(ctx context.Context) error
}

// Assistant is the entry point used by the HTTP handlers, the ingest CLI and
// the queue worker.
type Assistant struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	ingestor    *IngestService
	index       vectorstore.Index
	collection  string
	cache       AnswerCache
}

func NewAssistant(
	retriever *Retriever,
	synthesizer *Synthesizer,
	ingestor *IngestService,
	index vectorstore.Index,
	collection string,
	cache AnswerCache,
) *Assistant {
	return &Assistant{
		retriever:   retriever,
		synthesizer: synthesizer,
		ingestor:    ingestor,
		index:       index,
		collection:  collection,
		cache:       cache,
	}
}

// Answer fails only on a blank query; provider problems come back as fixed messages.
func (a *Assistant) Answer(ctx context.Context, query string) (*model.SynthesisResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	if a.synthesizer == nil {
		return nil, fmt.Errorf("%w: no llm gateway configured", ErrGenerationFailure)
	}

	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, query)
		if err != nil {
			log.Printf("answer cache get failed: %v", err)
		} else if ok {
			cached.Outcome = model.OutcomeSucceeded
			return cached, nil
		}
	}

	passages := a.retriever.Retrieve(ctx, query, 0)
	result, err := a.synthesizer.Synthesize(ctx, query, passages)
	if err != nil {
		return result, nil
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, query, result); err != nil {
			log.Printf("answer cache set failed: %v", err)
		}
	}
	return result, nil
}

func (a *Assistant) Ingest(ctx context.Context, docs []DocumentSource) (*model.IngestReport, error) {
	report, err := a.ingestor.Ingest(ctx, docs)
	if err != nil {
		return nil, err
	}
	if a.cache != nil && indexChanged(report) {
		if err := a.cache.Invalidate(ctx); err != nil {
			log.Printf("answer cache invalidate failed: %v", err)
		}
	}
	return report, nil
}

// indexChanged reports whether ingestion wrote anything, counting batches
// committed before a document failed.
func indexChanged(report *model.IngestReport) bool {
	if report.TotalChunks() > 0 {
		return true
	}
	for _, f := range report.Failures {
		var partial *vectorstore.PartialUpsertError
		if errors.As(f.Cause, &partial) && partial.Committed > 0 {
			return true
		}
	}
	return false
}

func (a *Assistant) Stats(ctx context.Context) model.IndexStats {
	return a.index.Stats(ctx, a.collection)
}
