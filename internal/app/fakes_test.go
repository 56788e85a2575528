package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/model"
)

var keywords = []string{"kanban", "kaizen", "oee", "5s"}

// keywordEmbedder maps text to keyword counts plus a constant bias so no vector is zero.
type keywordEmbedder struct {
	mu         sync.Mutex
	batchSizes []int
	failOn     string
	dim        int
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{dim: len(keywords) + 1}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, e.dim)
	for i, kw := range keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[len(keywords)] = 0.1
	return vec
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, ai.ErrEmbedding
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchSizes = append(e.batchSizes, len(texts))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int    { return e.dim }
func (e *keywordEmbedder) ModelName() string { return "keywords" }

type textDoc struct {
	name string
	text string
	err  error
}

func (d textDoc) SourceName() string           { return d.name }
func (d textDoc) ExtractText() (string, error) { return d.text, d.err }

var errUnreadable = errors.New("unreadable pdf")

type generatorFunc func(ctx context.Context, prompt, systemPrompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt, systemPrompt string, _ ...ai.GenerateOption) (string, error) {
	return f(ctx, prompt, systemPrompt)
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]*model.SynthesisResult
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*model.SynthesisResult)}
}

func (c *mapCache) Get(_ context.Context, query string) (*model.SynthesisResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[query]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (c *mapCache) Set(_ context.Context, query string, result *model.SynthesisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = result
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*model.SynthesisResult)
	c.invalidated++
	return nil
}
