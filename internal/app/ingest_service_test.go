package app

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lean-assistant/internal/vectorstore"
	"lean-assistant/internal/vectorstore/memory"
)

const testCollection = "lean_knowledge"

func newTestIngestor(emb *keywordEmbedder, index vectorstore.Index) *IngestService {
	return NewIngestService(emb, index, IngestConfig{
		Collection:     testCollection,
		ChunkSize:      1000,
		ChunkOverlap:   200,
		EmbedBatchSize: 2,
	})
}

func chunkIDs(t *testing.T, index vectorstore.Index) []string {
	t.Helper()
	hits, err := index.Search(context.Background(), testCollection, []float32{1, 1, 1, 1, 1}, 100)
	require.NoError(t, err)
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	sort.Strings(ids)
	return ids
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	index := memory.NewStorage(0)
	ing := newTestIngestor(newKeywordEmbedder(), index)
	doc := textDoc{name: "kanban.txt", text: strings.Repeat("kanban pull system ", 130)}

	first, err := ing.Ingest(ctx, []DocumentSource{doc})
	require.NoError(t, err)
	firstIDs := chunkIDs(t, index)

	second, err := ing.Ingest(ctx, []DocumentSource{doc})
	require.NoError(t, err)

	assert.Equal(t, first.ChunkCounts, second.ChunkCounts)
	assert.Equal(t, 4, second.ChunkCounts["kanban.txt"])
	assert.Equal(t, firstIDs, chunkIDs(t, index))
	assert.Equal(t, 4, index.Stats(ctx, testCollection).TotalEntries)
}

func TestIngestIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	emb := newKeywordEmbedder()
	emb.failOn = "poison"
	index := memory.NewStorage(0)
	ing := newTestIngestor(emb, index)

	report, err := ing.Ingest(ctx, []DocumentSource{
		textDoc{name: "a.md", text: "kaizen events every month"},
		textDoc{name: "broken.pdf", err: errUnreadable},
		textDoc{name: "blank.txt", text: " \n\t "},
		textDoc{name: "bad.txt", text: "poison chunk"},
		textDoc{name: "b.md", text: "oee = availability x performance x quality"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a.md": 1, "b.md": 1}, report.ChunkCounts)
	assert.Equal(t, 2, report.TotalChunks())
	require.Len(t, report.Failures, 3)
	assert.Equal(t, "broken.pdf", report.Failures[0].Document)
	assert.Contains(t, report.Failures[0].Error, "unreadable pdf")
	assert.Equal(t, "blank.txt", report.Failures[1].Document)
	assert.Equal(t, "bad.txt", report.Failures[2].Document)
	assert.Equal(t, 2, index.Stats(ctx, testCollection).TotalEntries)
}

func TestIngestBatchesEmbeddings(t *testing.T) {
	emb := newKeywordEmbedder()
	ing := newTestIngestor(emb, memory.NewStorage(0))

	// 5 windows of 1000 with step 800
	report, err := ing.Ingest(context.Background(), []DocumentSource{
		textDoc{name: "tpm.txt", text: strings.Repeat("t", 4000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, report.ChunkCounts["tpm.txt"])
	assert.Equal(t, []int{2, 2, 1}, emb.batchSizes)
}

func TestIngestReportsPartialUpsert(t *testing.T) {
	ctx := context.Background()
	index := memory.NewStorage(2)
	require.NoError(t, index.EnsureCollection(ctx, testCollection, 5))
	ing := newTestIngestor(newKeywordEmbedder(), index)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	report, err := ing.Ingest(ctx, []DocumentSource{textDoc{name: "x.txt", text: "kanban"}})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error, "upsert")
	assert.Empty(t, report.ChunkCounts)
}

func TestIngestDimensionMismatchIsFatal(t *testing.T) {
	ctx := context.Background()
	index := memory.NewStorage(0)
	require.NoError(t, index.EnsureCollection(ctx, testCollection, 3))

	report, err := newTestIngestor(newKeywordEmbedder(), index).Ingest(ctx, []DocumentSource{
		textDoc{name: "a.md", text: "kaizen"},
	})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Nil(t, report)
}
