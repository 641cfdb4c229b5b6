// Package summarize turns selected passages into one document summary:
// every passage is summarized on its own, then the partial summaries are
// combined by a final call.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/llm"
)

// DefaultCombineTokenLimit is the largest partial-summary text sent to a
// single combine call.
const DefaultCombineTokenLimit = 60000

// ErrNoSummary is returned when no passage produced a usable summary.
var ErrNoSummary = errors.New("summarize: no summaries produced")

// Budget counts and halves texts in model tokens.
type Budget interface {
	Count(text string) (int, error)
	SplitAt(text string) (string, string, error)
}

// Options tunes a Summarizer.
type Options struct {
	Concurrency       int
	CombineTokenLimit int
}

// Summarizer produces document summaries.
type Summarizer struct {
	llm    llm.Completer
	budget Budget
	opts   Options
}

// New creates a Summarizer.
func New(c llm.Completer, b Budget, opts Options) *Summarizer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.CombineTokenLimit <= 0 {
		opts.CombineTokenLimit = DefaultCombineTokenLimit
	}
	return &Summarizer{llm: c, budget: b, opts: opts}
}

// Summarize summarizes representative passages with the detailed prompt and
// outlier passages with the concise prompt, drops empty results and combines
// the rest.
func (s *Summarizer) Summarize(ctx context.Context, passages, outliers []string) (string, error) {
	start := time.Now()

	prompts := make([]string, 0, len(passages)+len(outliers))
	for _, p := range passages {
		prompts = append(prompts, llm.BuildSummaryPrompt(p))
	}
	for _, o := range outliers {
		prompts = append(prompts, llm.BuildOutlierPrompt(o))
	}

	replies := llm.CompleteAll(ctx, s.llm, prompts, s.opts.Concurrency)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	summaries := usable(replies[:len(passages)])
	outlierSummaries := usable(replies[len(passages):])

	if len(summaries) == 0 && len(outlierSummaries) == 0 {
		return "", ErrNoSummary
	}

	out, err := s.Combine(ctx, summaries, outlierSummaries)
	if err != nil {
		return "", err
	}

	log.Info().
		Int("passages", len(passages)).
		Int("outliers", len(outliers)).
		Int("summaries", len(summaries)).
		Int("outlierSummaries", len(outlierSummaries)).
		Dur("took", time.Since(start)).
		Msg("Summary generated")
	return out, nil
}

// Combine merges partial summaries. When either side exceeds the token
// limit both sides are halved, each half is combined and a last call merges
// the two results.
func (s *Summarizer) Combine(ctx context.Context, summaries, outliers []string) (string, error) {
	text := strings.Join(summaries, "\n\n")
	notes := strings.Join(outliers, "\n\n")

	textParts, err := s.halve(text)
	if err != nil {
		return "", err
	}
	noteParts, err := s.halve(notes)
	if err != nil {
		return "", err
	}

	if len(textParts) == 1 && len(noteParts) == 1 {
		return s.combineOnce(ctx, text, notes)
	}

	pick := func(parts []string, i int) string {
		if len(parts) == 1 {
			return parts[0]
		}
		return parts[i]
	}

	log.Debug().Int("limit", s.opts.CombineTokenLimit).Msg("Partial summaries over budget, combining in halves")
	first, err := s.combineOnce(ctx, pick(textParts, 0), pick(noteParts, 0))
	if err != nil {
		return "", err
	}
	second, err := s.combineOnce(ctx, pick(textParts, 1), pick(noteParts, 1))
	if err != nil {
		return "", err
	}
	return s.combineOnce(ctx, first+"\n\n"+second, "")
}

// halve returns text as one part, or as two halves when it is over budget.
func (s *Summarizer) halve(text string) ([]string, error) {
	if text == "" {
		return []string{""}, nil
	}
	n, err := s.budget.Count(text)
	if err != nil {
		return nil, fmt.Errorf("summarize: count tokens: %w", err)
	}
	if n <= s.opts.CombineTokenLimit {
		return []string{text}, nil
	}
	first, second, err := s.budget.SplitAt(text)
	if err != nil {
		return nil, fmt.Errorf("summarize: split: %w", err)
	}
	return []string{first, second}, nil
}

func (s *Summarizer) combineOnce(ctx context.Context, text, notes string) (string, error) {
	out, err := llm.Prompt(ctx, s.llm, llm.BuildCombinePrompt(text, notes))
	if err != nil {
		return "", fmt.Errorf("summarize: combine: %w", err)
	}
	out = llm.StripPreamble(out)
	if out == "" {
		return "", fmt.Errorf("summarize: combine: %w", ErrNoSummary)
	}
	return out, nil
}

func usable(replies []string) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		r = llm.StripPreamble(r)
		if llm.HasMeaningfulContent(r) {
			out = append(out, r)
		}
	}
	return out
}
