// Package qdrant is a REST client for the Qdrant vector database.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/httpjson"
	"github.com/thebtf/docenrich/internal/vector"
)

// Config configures a Client.
type Config struct {
	URL      string
	APIKey   string
	Timeout  time.Duration
	Attempts int
}

// Client implements vector.Index over the Qdrant HTTP API.
type Client struct {
	http *httpjson.Client
	base string

	mu    sync.RWMutex
	sizes map[string]int // collection -> vector size, filled by EnsureCollection
}

var _ vector.Index = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url is required")
	}
	return &Client{
		http: httpjson.New(httpjson.Options{
			Headers:  map[string]string{"api-key": cfg.APIKey},
			Timeout:  cfg.Timeout,
			Attempts: cfg.Attempts,
		}),
		base:  strings.TrimRight(cfg.URL, "/"),
		sizes: make(map[string]int),
	}, nil
}

func (c *Client) collectionURL(name string, parts ...string) string {
	u := c.base + "/collections/" + url.PathEscape(name)
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist. An existing collection of another size is an error.
func (c *Client) EnsureCollection(ctx context.Context, name string, size int) error {
	if size <= 0 {
		return fmt.Errorf("qdrant: invalid vector size %d", size)
	}

	var info collectionInfo
	err := c.http.Get(ctx, c.collectionURL(name), &info)
	switch {
	case err == nil:
		got := info.Result.Config.Params.Vectors.Size
		if got != 0 && got != size {
			return fmt.Errorf("qdrant: collection %s has size %d, want %d: %w", name, got, size, vector.ErrDimension)
		}
	case httpjson.IsStatus(err, http.StatusNotFound):
		body := map[string]any{
			"vectors": map[string]any{"size": size, "distance": "Cosine"},
		}
		if err := c.http.Put(ctx, c.collectionURL(name), body, nil); err != nil {
			return fmt.Errorf("qdrant: create collection %s: %w", name, err)
		}
		log.Info().Str("collection", name).Int("size", size).Msg("Created vector collection")
	default:
		return fmt.Errorf("qdrant: get collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.sizes[name] = size
	c.mu.Unlock()
	return nil
}

type pointStruct struct {
	Payload map[string]any `json:"payload,omitempty"`
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
}

// Upsert writes points and waits for the write to be applied.
func (c *Client) Upsert(ctx context.Context, collection string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	c.mu.RLock()
	size := c.sizes[collection]
	c.mu.RUnlock()

	body := make([]pointStruct, len(points))
	for i, p := range points {
		if size > 0 && len(p.Vector) != size {
			return fmt.Errorf("qdrant: point %s has %d dimensions, want %d: %w", p.ID, len(p.Vector), size, vector.ErrDimension)
		}
		body[i] = pointStruct{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	err := c.http.Put(ctx, c.collectionURL(collection, "points")+"?wait=true", map[string]any{"points": body}, nil)
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %s: %w", collection, err)
	}
	return nil
}

// SetPayload merges payload fields into existing points.
func (c *Client) SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"payload": payload, "points": ids}
	err := c.http.Post(ctx, c.collectionURL(collection, "points", "payload")+"?wait=true", body, nil)
	if err != nil {
		return fmt.Errorf("qdrant: set payload in %s: %w", collection, err)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		Payload map[string]any `json:"payload"`
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
	} `json:"result"`
}

// Search returns up to limit closest points with payloads.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}

	var resp searchResponse
	if err := c.http.Post(ctx, c.collectionURL(collection, "points", "search"), body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", collection, err)
	}

	hits := make([]vector.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vector.Hit{
			ID:      fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}
