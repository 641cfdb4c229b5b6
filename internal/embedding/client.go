// Package embedding computes text embeddings through an OpenAI-compatible
// /embeddings endpoint, with an in-memory LRU cache in front of it.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/httpjson"
)

// MaxBatch is the largest number of inputs sent in one request.
const MaxBatch = 1024

var (
	// ErrEmptyInput is returned when there is nothing to embed.
	ErrEmptyInput = errors.New("embedding: empty input")
	// ErrBadResponse is returned when the server's reply does not match the request.
	ErrBadResponse = errors.New("embedding: malformed response")
)

// Embedder turns texts into vectors, index-aligned with the input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	Dimensions int
	BatchSize  int
	CacheSize  int
	Attempts   int
}

// Stats are cache counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Requests int64 `json:"requests"`
}

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	http       *httpjson.Client
	cache      *lru.Cache[string, []float32]
	url        string
	model      string
	dimensions int
	batchSize  int

	hits     atomic.Int64
	misses   atomic.Int64
	requests atomic.Int64
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// New creates a Client. A CacheSize of 0 disables caching.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding: base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding: model is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > MaxBatch {
		batch = MaxBatch
	}

	c := &Client{
		http: httpjson.New(httpjson.Options{
			Headers:  httpjson.BearerHeaders(cfg.APIKey),
			Timeout:  cfg.Timeout,
			Attempts: cfg.Attempts,
		}),
		url:        strings.TrimRight(cfg.BaseURL, "/") + "/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding: init cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Dimensions is the configured vector size (0 means whatever the model returns).
func (c *Client) Dimensions() int { return c.dimensions }

// Stats returns cache and request counters.
func (c *Client) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Requests: c.requests.Load()}
}

// Embed returns one vector per text in input order. Cached texts are not
// sent again; duplicate texts in one call are sent once.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if v, found := c.lookup(text); found {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			order = append(order, text)
		}
		pending[text] = append(pending[text], i)
	}

	for start := 0; start < len(order); start += c.batchSize {
		end := min(start+c.batchSize, len(order))
		vectors, err := c.request(ctx, order[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vectors {
			text := order[start+j]
			c.store(text, v)
			for _, i := range pending[text] {
				out[i] = clone(v)
			}
		}
	}

	log.Debug().
		Int("texts", len(texts)).
		Int("sent", len(order)).
		Str("model", c.model).
		Msg("Embedded texts")
	return out, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (c *Client) request(ctx context.Context, batch []string) ([][]float32, error) {
	c.requests.Add(1)

	var resp embedResponse
	req := embedRequest{Model: c.model, Input: batch, Dimensions: c.dimensions}
	if err := c.http.Post(ctx, c.url, req, &resp); err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: %d vectors for %d inputs", ErrBadResponse, len(resp.Data), len(batch))
	}

	vectors := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad index %d", ErrBadResponse, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", ErrBadResponse, d.Index)
		}
		v := d.Embedding
		if c.dimensions > 0 && len(v) > c.dimensions {
			v = v[:c.dimensions]
		}
		vectors[d.Index] = v
	}
	return vectors, nil
}

func (c *Client) cacheKey(text string) string {
	return c.model + "\x00" + text
}

func (c *Client) lookup(text string) ([]float32, bool) {
	if c.cache == nil {
		c.misses.Add(1)
		return nil, false
	}
	v, found := c.cache.Get(c.cacheKey(text))
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return clone(v), true
}

func (c *Client) store(text string, v []float32) {
	if c.cache == nil {
		return
	}
	c.cache.Add(c.cacheKey(text), clone(v))
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Mean returns the component-wise mean of vectors, or nil when there are
// none or their lengths differ.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out
}
