package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	EmbedderOpenAI = "openai"
	EmbedderGemini = "gemini"
	EmbedderONNX   = "onnx"
)

var (
	ErrEmbedding       = errors.New("embedding failed")
	ErrUnknownEmbedder = errors.New("unknown embedding backend")
)

// Embedder maps text to fixed-dimension vectors. EmbedBatch returns exactly one
// vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

type EmbedderConfig struct {
	Backend   string
	Model     string
	Dimension int

	// OpenAI-compatible endpoint.
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration

	// Local ONNX sentence-transformer.
	ModelPath         string
	VocabPath         string
	MaxSeqLength      int
	ONNXSharedLibPath string
}

// EmbeddingConfig holds API settings for an OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewEmbedder builds the configured backend once per process.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case EmbedderOpenAI:
		return NewOpenAIEmbedder(NewOpenAICompatibleClient(cfg.HTTPTimeout), EmbeddingConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}, cfg.Dimension, cfg.RequestsPerSecond), nil
	case EmbedderGemini:
		return NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
	case EmbedderONNX:
		return NewONNXEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.ONNXSharedLibPath, cfg.Model, cfg.Dimension, cfg.MaxSeqLength), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmbedder, cfg.Backend)
	}
}

// OpenAIEmbedder calls /embeddings with array input.
type OpenAIEmbedder struct {
	client    *OpenAICompatibleClient
	cfg       EmbeddingConfig
	dimension int
	limiter   *rate.Limiter
}

// NewOpenAIEmbedder paces requests at rps per second; rps <= 0 disables pacing.
func NewOpenAIEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig, dimension int, rps float64) *OpenAIEmbedder {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &OpenAIEmbedder{
		client:    client,
		cfg:       cfg,
		dimension: dimension,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (e *OpenAIEmbedder) Dimension() int    { return e.dimension }
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrEmbedding, err)
	}

	bodyBytes, err := json.Marshal(map[string]interface{}{
		"model": e.cfg.Model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEmbedding, err)
	}

	raw, err := e.client.post(ctx, ChatConfig{BaseURL: e.cfg.BaseURL, APIKey: e.cfg.APIKey}, "/embeddings", bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrEmbedding, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbedding, len(parsed.Data), len(texts))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if err := checkDimension(parsed.Data[i].Embedding, e.dimension); err != nil {
			return nil, err
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

func checkDimension(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return fmt.Errorf("%w: vector has %d dimensions, expected %d", ErrEmbedding, len(vec), dimension)
	}
	return nil
}
