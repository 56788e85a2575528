package ai

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiBatchLimit is the maximum number of contents per BatchEmbedContents call.
const geminiBatchLimit = 100

type GeminiEmbedder struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	name      string
	dimension int
}

// NewGeminiEmbedder builds its own genai client; opts are appended to the API
// key option, e.g. option.WithEndpoint.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiEmbedder{
		client:    client,
		model:     client.EmbeddingModel(model),
		name:      model,
		dimension: dimension,
	}, nil
}

func (e *GeminiEmbedder) Dimension() int    { return e.dimension }
func (e *GeminiEmbedder) ModelName() string { return e.name }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
	}
	vec := toFloat32(resp.Embedding.Values)
	if err := checkDimension(vec, e.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch := e.model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		resp, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbedding, len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
			}
			vec := toFloat32(emb.Values)
			if err := checkDimension(vec, e.dimension); err != nil {
				return nil, err
			}
			result = append(result, vec)
		}
	}
	return result, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

func toFloat32(values []float32) []float32 {
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
