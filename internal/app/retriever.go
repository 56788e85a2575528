package app

import (
	"context"
	"log"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

const DefaultTopK = 5

// Retriever finds the passages most similar to a query. Every failure degrades
// to an empty result so the answer can still be produced ungrounded.
type Retriever struct {
	embedder   ai.Embedder
	index      vectorstore.Index
	collection string
	topK       int
}

func NewRetriever(embedder ai.Embedder, index vectorstore.Index, collection string, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, collection: collection, topK: topK}
}

// Retrieve returns at most k passages by descending score; k <= 0 uses the configured top-k.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []model.RetrievedPassage {
	if k <= 0 {
		k = r.topK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("retrieve embed query failed: %v", err)
		return []model.RetrievedPassage{}
	}
	hits, err := r.index.Search(ctx, r.collection, vec, k)
	if err != nil {
		log.Printf("retrieve search %s failed: %v", r.collection, err)
		return []model.RetrievedPassage{}
	}

	passages := make([]model.RetrievedPassage, len(hits))
	for i, h := range hits {
		passages[i] = model.RetrievedPassage{
			Content: h.Payload.Text,
			Score:   h.Score,
			Metadata: map[string]any{
				"source":       h.Payload.Source,
				"chunk_index":  h.Payload.ChunkIndex,
				"total_chunks": h.Payload.TotalChunks,
				"chunk_id":     h.ChunkID,
			},
		}
	}
	return passages
}
