package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lean-assistant/internal/vectorstore/memory"
)

func TestRetrieveMissingCollection(t *testing.T) {
	r := NewRetriever(newKeywordEmbedder(), memory.NewStorage(0), testCollection, 5)

	passages := r.Retrieve(context.Background(), "what is kanban?", 0)
	assert.NotNil(t, passages)
	assert.Empty(t, passages)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	emb := newKeywordEmbedder()
	emb.failOn = "kanban"
	r := NewRetriever(emb, memory.NewStorage(0), testCollection, 5)

	passages := r.Retrieve(context.Background(), "kanban", 3)
	assert.NotNil(t, passages)
	assert.Empty(t, passages)
}

func TestRetrieveRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	emb := newKeywordEmbedder()
	index := memory.NewStorage(0)
	_, err := newTestIngestor(emb, index).Ingest(ctx, []DocumentSource{
		textDoc{name: "kaizen.md", text: "kaizen kaizen continuous improvement"},
		textDoc{name: "kanban.md", text: "kanban cards limit work in progress"},
		textDoc{name: "oee.md", text: "oee measures equipment effectiveness"},
	})
	require.NoError(t, err)

	r := NewRetriever(emb, index, testCollection, 2)
	passages := r.Retrieve(ctx, "how do kanban cards work?", 0)
	require.Len(t, passages, 2)
	assert.Equal(t, "kanban cards limit work in progress", passages[0].Content)
	assert.GreaterOrEqual(t, passages[0].Score, passages[1].Score)

	meta := passages[0].Metadata
	assert.Equal(t, "kanban.md", meta["source"])
	assert.Equal(t, 0, meta["chunk_index"])
	assert.Equal(t, 1, meta["total_chunks"])
	assert.Equal(t, ChunkID("kanban.md", 0), meta["chunk_id"])

	assert.Len(t, r.Retrieve(ctx, "kanban", 10), 3)
}
