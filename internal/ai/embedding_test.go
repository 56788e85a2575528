package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderUnknownBackend(t *testing.T) {
	_, err := NewEmbedder(context.Background(), EmbedderConfig{Backend: "word2vec", Dimension: 3})
	assert.ErrorIs(t, err, ErrUnknownEmbedder)
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		inputs = body.Input
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	emb, err := NewEmbedder(context.Background(), EmbedderConfig{
		Backend:   EmbedderOpenAI,
		BaseURL:   srv.URL,
		Model:     "text-embedding-3-small",
		Dimension: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.Dimension())
	assert.Equal(t, "text-embedding-3-small", emb.ModelName())

	vecs, err := emb.EmbedBatch(context.Background(), []string{"muda", "  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"muda", "  "}, inputs)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAIEmbedderRejectsBadResponses(t *testing.T) {
	cases := map[string]string{
		"count":     `{"data":[{"index":0,"embedding":[1,0]}]}`,
		"dimension": `{"data":[{"index":0,"embedding":[1,0,0]},{"index":1,"embedding":[1,0]}]}`,
		"json":      `not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			emb := NewOpenAIEmbedder(NewOpenAICompatibleClient(0), EmbeddingConfig{BaseURL: srv.URL}, 2, 0)
			_, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
			assert.ErrorIs(t, err, ErrEmbedding)
		})
	}
}

func TestOpenAIEmbedderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	emb := NewOpenAIEmbedder(NewOpenAICompatibleClient(0), EmbeddingConfig{BaseURL: url}, 2, 10)
	_, err := emb.Embed(context.Background(), "heijunka")
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestOpenAIEmbedderEmptyBatch(t *testing.T) {
	emb := NewOpenAIEmbedder(NewOpenAICompatibleClient(0), EmbeddingConfig{}, 2, 0)
	vecs, err := emb.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		3, 0,
		1, 4,
		100, 100, // padding
	}
	out := meanPool(hidden, []int64{1, 1, 0}, 2)
	// mean (2, 2) normalised
	assert.InDelta(t, 0.7071, out[0], 1e-3)
	assert.InDelta(t, 0.7071, out[1], 1e-3)

	assert.Equal(t, []float32{0, 0}, meanPool(hidden, []int64{0, 0, 0}, 2))
}
