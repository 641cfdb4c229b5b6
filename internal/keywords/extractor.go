// Package keywords extracts legal keywords from document passages with an
// LLM and refines the merged list.
package keywords

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/llm"
	"github.com/thebtf/docenrich/pkg/similarity"
)

// DefaultDedupeThreshold is the term-overlap ratio at which two phrases are
// treated as the same keyword when the refinement call fails.
const DefaultDedupeThreshold = 0.6

// ErrNoKeywords is returned when no passage produced a keyword.
var ErrNoKeywords = errors.New("keywords: none extracted")

// Options tunes an Extractor.
type Options struct {
	Concurrency     int
	DedupeThreshold float64
}

// Extractor produces a keyword list per document.
type Extractor struct {
	llm  llm.Completer
	opts Options
}

// New creates an Extractor.
func New(c llm.Completer, opts Options) *Extractor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.DedupeThreshold <= 0 {
		opts.DedupeThreshold = DefaultDedupeThreshold
	}
	return &Extractor{llm: c, opts: opts}
}

// Extract asks for keywords per passage, merges them, and asks the model to
// refine the merged list. If refinement fails or returns nothing, the
// merged list is collapsed locally instead.
func (e *Extractor) Extract(ctx context.Context, passages []string, longDocument bool) ([]string, error) {
	start := time.Now()

	prompts := make([]string, len(passages))
	for i, p := range passages {
		prompts[i] = llm.BuildKeywordPrompt(p, longDocument)
	}

	var merged []string
	for _, reply := range llm.CompleteAll(ctx, e.llm, prompts, e.opts.Concurrency) {
		merged = append(merged, Parse(reply)...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged = Unique(merged)
	if len(merged) == 0 {
		return nil, ErrNoKeywords
	}

	refined := e.refine(ctx, merged)

	log.Info().
		Int("passages", len(passages)).
		Bool("longDocument", longDocument).
		Int("merged", len(merged)).
		Int("keywords", len(refined)).
		Dur("took", time.Since(start)).
		Msg("Keywords extracted")
	return refined, nil
}

func (e *Extractor) refine(ctx context.Context, merged []string) []string {
	if len(merged) == 1 {
		return merged
	}
	reply, err := e.llm.Complete(ctx, llm.BuildRefineMessages(merged))
	if err != nil {
		log.Warn().Err(err).Int("keywords", len(merged)).Msg("Keyword refinement failed, de-duplicating locally")
		return similarity.DedupeTerms(merged, e.opts.DedupeThreshold)
	}
	refined := Unique(Parse(reply))
	if len(refined) == 0 {
		log.Warn().Int("keywords", len(merged)).Msg("Keyword refinement returned nothing, de-duplicating locally")
		return similarity.DedupeTerms(merged, e.opts.DedupeThreshold)
	}
	return refined
}

// Parse reads a list reply. A JSON array is tried first; otherwise the
// reply is split on commas outside double quotes, with brackets ignored.
func Parse(reply string) []string {
	reply = llm.StripPreamble(reply)
	if reply == "" {
		return nil
	}

	if open, end := strings.Index(reply, "["), strings.LastIndex(reply, "]"); open >= 0 && end > open {
		var items []any
		if err := json.Unmarshal([]byte(reply[open:end+1]), &items); err == nil {
			out := make([]string, 0, len(items))
			for _, it := range items {
				var s string
				switch v := it.(type) {
				case string:
					s = v
				case nil:
					continue
				default:
					b, _ := json.Marshal(v)
					s = string(b)
				}
				if s = cleanTerm(s); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return splitList(reply)
}

// splitList splits on commas outside double quotes. A closing quote ends a
// term.
func splitList(s string) []string {
	var out []string
	var cur strings.Builder
	inString := false

	flush := func() {
		if t := cleanTerm(cur.String()); t != "" {
			out = append(out, t)
		}
		cur.Reset()
	}

	for _, r := range s {
		switch {
		case r == '"':
			inString = !inString
			if !inString {
				flush()
			}
		case (r == ',' || r == '\n') && !inString:
			flush()
		case (r == '[' || r == ']') && !inString:
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

var numberedItem = regexp.MustCompile(`^\d+[.)]\s+`)

// cleanTerm trims whitespace, list markers and stray quotes.
func cleanTerm(s string) string {
	s = strings.TrimSpace(s)
	s = numberedItem.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "-*• ")
	s = strings.Trim(s, "'`")
	return strings.TrimSpace(s)
}

// Unique drops case-insensitive duplicates, keeping the first spelling.
func Unique(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
