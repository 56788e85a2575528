package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"lean-assistant/internal/model"
)

const (
	defaultAnswerTTL = 10 * time.Minute
	generationKey    = "lean:answer:generation"
)

// AnswerCache keeps synthesized answers in Redis. Keys embed a generation
// counter; Invalidate bumps the counter so older answers are never read again
// and expire on their own.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = defaultAnswerTTL
	}
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) Get(ctx context.Context, query string) (*model.SynthesisResult, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, answerKey(gen, query)).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get answer failed: %w", err)
	}

	var result model.SynthesisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	if result.Sources == nil {
		result.Sources = []model.Source{}
	}
	return &result, true, nil
}

func (c *AnswerCache) Set(ctx context.Context, query string, result *model.SynthesisResult) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal answer cache failed: %w", err)
	}
	if err := c.client.Set(ctx, answerKey(gen, query), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

func (c *AnswerCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("redis bump answer generation failed: %w", err)
	}
	return nil
}

func (c *AnswerCache) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redisv9.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get answer generation failed: %w", err)
	}
	return gen, nil
}

func answerKey(generation, query string) string {
	sum := sha1.Sum([]byte(normalizeQuery(query)))
	return fmt.Sprintf("lean:answer:%s:%s", generation, hex.EncodeToString(sum[:]))
}

// normalizeQuery folds case and collapses whitespace so trivially different
// phrasings share an entry.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
