// Package vector provides common types for the document vector index.
package vector

import (
	"context"
	"errors"
)

// ErrDimension is returned when a vector does not match the collection size.
var ErrDimension = errors.New("vector: dimension mismatch")

// Point is one vector with its payload.
type Point struct {
	Payload map[string]any
	ID      string
	Vector  []float32
}

// Hit is one search result.
type Hit struct {
	Payload map[string]any
	ID      string
	Score   float64
}

// Index defines the vector storage operations the pipeline and search use.
// The qdrant.Client implements this interface.
type Index interface {
	// EnsureCollection creates a cosine collection of the given size when missing.
	EnsureCollection(ctx context.Context, name string, size int) error

	// Upsert writes points, replacing any with the same id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// SetPayload merges payload fields into existing points.
	SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error

	// Search returns the closest points, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)
}

// StringField returns a string payload field or "".
func (h Hit) StringField(key string) string {
	s, _ := h.Payload[key].(string)
	return s
}

// StringsField returns a string list payload field. JSON decoding yields
// []any, so both shapes are accepted.
func (h Hit) StringsField(key string) []string {
	switch v := h.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
