package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/pkg/models"
)

// DefaultBatchSize is how many documents are fetched per page.
const DefaultBatchSize = 50

// Mode selects what a run processes.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeAll    Mode = "all"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode parses a run mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeAll:
		return ModeAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// BatchOptions bounds a collection run.
type BatchOptions struct {
	// BatchSize is the page size.
	BatchSize int
	// Limit caps the documents visited; 0 means no cap.
	Limit int
}

// CollectionResult summarizes one collection run.
type CollectionResult struct {
	Collection string        `json:"collection"`
	Total      int64         `json:"total"`
	Visited    int           `json:"visited"`
	Processed  int           `json:"processed"`
	Degenerate int           `json:"degenerate"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

func (c *CollectionResult) add(r *DocumentResult) {
	c.Visited++
	switch r.Outcome {
	case models.RunOK:
		c.Processed++
	case models.RunDegenerate:
		c.Processed++
		c.Degenerate++
	case models.RunSkipped:
		c.Skipped++
	case models.RunFailed:
		c.Failed++
	}
}

// ProcessBatch processes docs in order. A failed document does not stop the
// batch; a canceled context does.
func (p *Processor) ProcessBatch(ctx context.Context, collection string, docs []*models.Document) ([]*DocumentResult, error) {
	results := make([]*DocumentResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, _ := p.ProcessDocument(ctx, collection, doc)
		results = append(results, r)
	}
	return results, ctx.Err()
}

// ProcessCollection walks a collection page by page in id order.
func (p *Processor) ProcessCollection(ctx context.Context, collection string, opts BatchOptions) (*CollectionResult, error) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	out := &CollectionResult{Collection: collection}

	total, err := p.deps.Store.CountDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", collection, err)
	}
	out.Total = total

	log.Info().Str("collection", collection).Int64("total", total).Int("batchSize", opts.BatchSize).Msg("Processing collection")

	var runErr error
	// The store may return short pages, so the offset follows what came back.
	for offset := 0; int64(offset) < total; {
		size := opts.BatchSize
		if opts.Limit > 0 {
			if out.Visited >= opts.Limit {
				break
			}
			size = min(size, opts.Limit-out.Visited)
		}

		docs, err := p.deps.Store.ListDocuments(ctx, collection, offset, size)
		if err != nil {
			runErr = fmt.Errorf("list %s at %d: %w", collection, offset, err)
			break
		}
		if len(docs) == 0 {
			break
		}

		offset += len(docs)

		results, err := p.ProcessBatch(ctx, collection, docs)
		for _, r := range results {
			out.add(r)
		}
		if err != nil {
			runErr = err
			break
		}
	}

	out.Duration = time.Since(start)
	p.deps.Events.Publish(Event{
		Timestamp:  time.Now(),
		Type:       EventCollection,
		Collection: collection,
		Processed:  out.Processed,
		Failed:     out.Failed,
		DurationMs: out.Duration.Milliseconds(),
	})

	log.Info().
		Str("collection", collection).
		Int("visited", out.Visited).
		Int("processed", out.Processed).
		Int("degenerate", out.Degenerate).
		Int("skipped", out.Skipped).
		Int("failed", out.Failed).
		Dur("took", out.Duration).
		Msg("Collection done")
	return out, runErr
}

// Run processes one collection or every collection the store knows.
func (p *Processor) Run(ctx context.Context, mode Mode, collection string, opts BatchOptions) ([]*CollectionResult, error) {
	var names []string
	switch mode {
	case ModeSingle:
		if collection == "" {
			return nil, errors.New("single mode needs a collection")
		}
		names = []string{collection}
	case ModeAll:
		var err error
		if names, err = p.deps.Store.ListCollections(ctx); err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	results := make([]*CollectionResult, 0, len(names))
	for _, name := range names {
		r, err := p.ProcessCollection(ctx, name, opts)
		if r != nil {
			results = append(results, r)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
