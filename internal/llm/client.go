// Package llm talks to an OpenAI-compatible chat completions endpoint and
// builds the prompts used for summaries and keywords.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thebtf/docenrich/internal/httpjson"
)

// Roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ErrNoChoices is returned when the server answers without a completion.
var ErrNoChoices = errors.New("llm: response has no choices")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// User wraps content in a single user message.
func User(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// Completer produces a completion for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	Attempts          int
}

// Client is an OpenAI-compatible chat client. Calls are rate limited
// across goroutines.
type Client struct {
	http      *httpjson.Client
	limiter   *rate.Limiter
	url       string
	model     string
	maxTokens int
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llm: base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		http: httpjson.New(httpjson.Options{
			Headers:  httpjson.BearerHeaders(cfg.APIKey),
			Timeout:  cfg.Timeout,
			Attempts: cfg.Attempts,
		}),
		limiter:   rate.NewLimiter(limit, burst),
		url:       strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit: %w", err)
	}

	start := time.Now()
	var resp chatResponse
	req := chatRequest{Model: c.model, Messages: messages, MaxTokens: c.maxTokens}
	if err := c.http.Post(ctx, c.url, req, &resp); err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Int("chars", len(out)).
		Dur("took", time.Since(start)).
		Msg("Completion received")
	return out, nil
}

// Prompt sends prompt as a single user message.
func Prompt(ctx context.Context, c Completer, prompt string) (string, error) {
	return c.Complete(ctx, User(prompt))
}

// CompleteAll runs one single-message completion per prompt with at most
// limit in flight. The result is index-aligned with prompts; a prompt whose
// call fails yields an empty string.
func CompleteAll(ctx context.Context, c Completer, prompts []string, limit int) []string {
	out := make([]string, len(prompts))
	if len(prompts) == 0 {
		return out
	}
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, p := range prompts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return out
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := Prompt(ctx, c, p)
			if err != nil {
				log.Warn().Err(err).Int("index", i).Msg("Completion failed")
				return
			}
			out[i] = res
		}()
	}
	wg.Wait()
	return out
}
