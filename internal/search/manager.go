package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/docenrich/internal/embedding"
	"github.com/thebtf/docenrich/internal/vector"
)

// Vector collections a document is indexed in.
const (
	SourceContent = "content"
	SourceSummary = "summary"
	SourceKeyword = "keyword"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("search: empty query")

// Collections names the vector collections searched.
type Collections struct {
	Content string
	Summary string
	Keyword string
}

// Manager provides fused semantic search across the document collections.
type Manager struct {
	embedder    embedding.Embedder
	index       vector.Index
	collections Collections
}

// NewManager creates a new search manager.
func NewManager(embedder embedding.Embedder, index vector.Index, collections Collections) *Manager {
	return &Manager{
		embedder:    embedder,
		index:       index,
		collections: collections,
	}
}

// SearchParams contains parameters for a search.
type SearchParams struct {
	Query      string
	Collection string // only documents of this source collection, if set
	Limit      int
}

// SearchResult represents one matched document.
type SearchResult struct {
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
	Collection string   `json:"collection"`
	Source     string   `json:"source"`
	Keywords   []string `json:"keywords,omitempty"`
	DocID      int64    `json:"doc_id"`
	Score      float64  `json:"score"`
}

// SearchResponse contains the fused results.
type SearchResponse struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// Search embeds the query, searches every collection and fuses the ranked
// lists. A failing collection is skipped; all failing is an error.
func (m *Manager) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		return nil, ErrEmptyQuery
	}
	if params.Limit <= 0 {
		params.Limit = defaultLimit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	vecs, err := m.embedder.Embed(ctx, []string{params.Query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	query := vecs[0]

	sources := []struct {
		name       string
		collection string
	}{
		{SourceContent, m.collections.Content},
		{SourceSummary, m.collections.Summary},
		{SourceKeyword, m.collections.Keyword},
	}

	hits := make([][]vector.Hit, len(sources))
	errs := make([]error, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			// over-fetch: hits of other source collections are filtered out below
			h, err := m.index.Search(gctx, src.collection, query, params.Limit*2)
			if err != nil {
				log.Warn().Err(err).Str("collection", src.collection).Msg("Vector search failed, skipping collection")
				errs[i] = err
				return nil
			}
			hits[i] = h
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil && countNil(errs) == 0 {
		return nil, fmt.Errorf("search: %w", err)
	}

	payloads := make(map[int64]vector.Hit)
	lists := make([][]ScoredID, len(sources))
	for i, src := range sources {
		lists[i] = rankHits(src.name, hits[i], params.Collection, payloads)
	}

	fused := RRF(lists...)
	if len(fused) > params.Limit {
		fused = fused[:params.Limit]
	}

	resp := &SearchResponse{Query: params.Query, Results: make([]SearchResult, 0, len(fused))}
	for _, f := range fused {
		h := payloads[f.ID]
		resp.Results = append(resp.Results, SearchResult{
			DocID:      f.ID,
			Score:      f.Score,
			Source:     f.Source,
			Title:      h.StringField(vector.FieldTitle),
			URL:        h.StringField(vector.FieldURL),
			Collection: h.StringField(vector.FieldCollection),
			Keywords:   h.StringsField(vector.FieldKeywords),
		})
	}
	resp.TotalCount = len(resp.Results)
	return resp, nil
}

// rankHits turns one collection's hits into a ranked list with one entry per
// document, recording the first payload seen for each document.
func rankHits(source string, hits []vector.Hit, collection string, payloads map[int64]vector.Hit) []ScoredID {
	seen := make(map[int64]bool, len(hits))
	out := make([]ScoredID, 0, len(hits))
	for _, h := range hits {
		id, ok := h.DocID()
		if !ok || seen[id] {
			continue
		}
		if collection != "" && h.StringField(vector.FieldCollection) != collection {
			continue
		}
		seen[id] = true
		if _, ok := payloads[id]; !ok {
			payloads[id] = h
		}
		out = append(out, ScoredID{Source: source, Score: h.Score, ID: id})
	}
	return out
}

func countNil(errs []error) int {
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n
}
