// Package httpjson is the JSON-over-HTTP client shared by the embedding,
// LLM and vector index clients. Transport failures, 429 and 5xx responses
// are retried with exponential backoff.
package httpjson

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout = 60 * time.Second
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 20 * time.Second
	errorBodyLimit = 512
)

var (
	// ErrBuildRequest wraps failures to construct a request.
	ErrBuildRequest = errors.New("build request")
	// ErrDecodeResponse wraps failures to decode a 2xx response body.
	ErrDecodeResponse = errors.New("decode response")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Options configures a Client.
type Options struct {
	Headers  map[string]string
	Timeout  time.Duration
	Backoff  time.Duration
	Attempts int
}

// Client sends JSON requests and decodes JSON responses.
type Client struct {
	http     *http.Client
	headers  map[string]string
	backoff  time.Duration
	attempts int
}

// New creates a Client. Attempts below 1 mean a single try.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		if v != "" {
			headers[k] = v
		}
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		headers:  headers,
		backoff:  backoff,
		attempts: attempts,
	}
}

// BearerHeaders returns an Authorization header map for key, or nil when
// key is empty. Local OpenAI-compatible servers run without keys.
func BearerHeaders(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + key}
}

// Post sends in as JSON and decodes the response into out (if non-nil).
func (c *Client) Post(ctx context.Context, url string, in, out any) error {
	return c.Do(ctx, http.MethodPost, url, in, out)
}

// Put sends in as JSON and decodes the response into out (if non-nil).
func (c *Client) Put(ctx context.Context, url string, in, out any) error {
	return c.Do(ctx, http.MethodPut, url, in, out)
}

// Get decodes the response of a GET into out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}

// Do performs the request, retrying retryable failures.
func (c *Client) Do(ctx context.Context, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, url, err)
		}
	}

	b := retry.WithMaxRetries(uint64(c.attempts-1), retry.WithCappedDuration(maxBackoff, retry.NewExponential(c.backoff)))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := c.once(ctx, method, url, payload, out)
		if err == nil {
			return nil
		}
		if retryable(ctx, err) {
			log.Debug().Err(err).Int("attempt", attempt).Str("url", url).Msg("Retrying request")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, url, ErrBuildRequest, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, url, ErrDecodeResponse, err)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, ErrBuildRequest) && !errors.Is(err, ErrDecodeResponse)
}
