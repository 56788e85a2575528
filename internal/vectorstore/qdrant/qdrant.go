// Package qdrant is a REST client for a Qdrant collection using cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lean-assistant/internal/model"
	"lean-assistant/internal/vectorstore"
)

var _ vectorstore.Index = (*Storage)(nil)

type Config struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	BatchSize int
}

type Storage struct {
	url       string
	apiKey    string
	batchSize int
	client    *http.Client

	mu         sync.RWMutex
	dimensions map[string]int
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = vectorstore.DefaultBatchSize
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		batchSize:  batchSize,
		client:     &http.Client{Timeout: timeout},
		dimensions: make(map[string]int),
	}
}

type collectionInfo struct {
	Status      string `json:"status"`
	PointsCount *int   `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type searchHit struct {
	ID      any     `json:"id"`
	Score   float32 `json:"score"`
	Payload struct {
		ChunkID     string `json:"chunk_id"`
		Text        string `json:"text"`
		Source      string `json:"source"`
		ChunkIndex  int    `json:"chunk_index"`
		TotalChunks int    `json:"total_chunks"`
	} `json:"payload"`
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	info, err := s.collectionInfo(ctx, name)
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil); err != nil {
			return fmt.Errorf("create qdrant collection %s failed: %w", name, err)
		}
	case err != nil:
		return err
	case info.Config.Params.Vectors.Size != dimension:
		return fmt.Errorf("%w: collection %s has %d, requested %d",
			vectorstore.ErrDimensionMismatch, name, info.Config.Params.Vectors.Size, dimension)
	}
	s.mu.Lock()
	s.dimensions[name] = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, entries []model.IndexEntry) error {
	s.mu.RLock()
	dimension, known := s.dimensions[name]
	s.mu.RUnlock()

	return vectorstore.UpsertInBatches(ctx, entries, s.batchSize, func(ctx context.Context, batch []model.IndexEntry) error {
		if known {
			if err := vectorstore.CheckDimensions(batch, dimension); err != nil {
				return err
			}
		}
		points := make([]point, len(batch))
		for i, e := range batch {
			points[i] = point{
				ID:     PointID(e.ChunkID),
				Vector: e.Vector,
				Payload: map[string]any{
					"chunk_id":     e.ChunkID,
					"text":         e.Payload.Text,
					"source":       e.Payload.Source,
					"chunk_index":  e.Payload.ChunkIndex,
					"total_chunks": e.Payload.TotalChunks,
				},
			}
		}
		body := map[string]any{"points": points}
		return s.do(ctx, http.MethodPut, s.collectionURL(name)+"/points?wait=true", body, nil)
	})
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]model.ScoredEntry, error) {
	if k <= 0 {
		return []model.ScoredEntry{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []searchHit `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]model.ScoredEntry, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunkID := r.Payload.ChunkID
		if chunkID == "" {
			chunkID = fmt.Sprint(r.ID)
		}
		results = append(results, model.ScoredEntry{
			IndexEntry: model.IndexEntry{
				ChunkID: chunkID,
				Payload: model.Payload{
					Text:        r.Payload.Text,
					Source:      r.Payload.Source,
					ChunkIndex:  r.Payload.ChunkIndex,
					TotalChunks: r.Payload.TotalChunks,
				},
			},
			Score: r.Score,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (s *Storage) Stats(ctx context.Context, name string) model.IndexStats {
	info, err := s.collectionInfo(ctx, name)
	if err != nil {
		return vectorstore.UnavailableStats(name)
	}
	stats := model.IndexStats{CollectionName: name, Status: vectorstore.StatusReady}
	if info.PointsCount != nil {
		stats.TotalEntries = *info.PointsCount
	}
	if info.Status != "" && info.Status != "green" {
		stats.Status = info.Status
	}
	return stats
}

// PointID maps a chunk ID onto a Qdrant point ID. Hex digests of 32 characters
// are already valid UUIDs; anything else is hashed into one.
func PointID(chunkID string) string {
	if id, err := uuid.Parse(chunkID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *Storage) collectionInfo(ctx context.Context, name string) (*collectionInfo, error) {
	var resp struct {
		Result collectionInfo `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

func (s *Storage) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, url.PathEscape(name))
}

func (s *Storage) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", vectorstore.ErrIndexUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, target)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant %s %s: %s", vectorstore.ErrIndexUnavailable, method, resp.Status, string(raw))
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, target, resp.Status, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse qdrant response failed: %w", err)
		}
	}
	return nil
}
