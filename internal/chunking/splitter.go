package chunking

import (
	"fmt"
	"strings"
)

// Splitter cuts text into chunks by token count.
type Splitter struct {
	tok  Tokenizer
	opts Options
}

// NewSplitter creates a splitter. Non-positive window sizes fall back to the
// defaults and overlaps are clamped below the window size.
func NewSplitter(tok Tokenizer, opts Options) *Splitter {
	def := DefaultOptions()
	if opts.SingleChunkTokens <= 0 {
		opts.SingleChunkTokens = def.SingleChunkTokens
	}
	if opts.MediumDocTokens <= 0 {
		opts.MediumDocTokens = def.MediumDocTokens
	}
	if opts.MediumSize <= 0 {
		opts.MediumSize = def.MediumSize
	}
	if opts.LargeSize <= 0 {
		opts.LargeSize = def.LargeSize
	}
	opts.MediumOverlap = clampOverlap(opts.MediumOverlap, opts.MediumSize)
	opts.LargeOverlap = clampOverlap(opts.LargeOverlap, opts.LargeSize)
	return &Splitter{tok: tok, opts: opts}
}

func clampOverlap(overlap, size int) int {
	if overlap < 0 {
		return 0
	}
	if overlap >= size {
		return size / 2
	}
	return overlap
}

// Count returns the number of tokens in text.
func (s *Splitter) Count(text string) (int, error) {
	ids, _, err := s.tok.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(ids), nil
}

// Split assigns text to a tier and chunks it accordingly.
func (s *Splitter) Split(text string) (Document, error) {
	if strings.TrimSpace(text) == "" {
		return Document{}, ErrEmptyText
	}
	ids, pieces, err := s.tok.Encode(text)
	if err != nil {
		return Document{}, fmt.Errorf("encode: %w", err)
	}
	if len(ids) == 0 {
		return Document{}, ErrEmptyText
	}

	n := len(ids)
	switch {
	case n < s.opts.SingleChunkTokens:
		return Document{Level: LevelSingle, Tokens: n, Chunks: []string{text}}, nil
	case n < s.opts.MediumDocTokens:
		chunks, err := s.windows(ids, pieces, LevelMedium)
		return Document{Level: LevelMedium, Tokens: n, Chunks: chunks}, err
	default:
		chunks, err := s.windows(ids, pieces, LevelLarge)
		return Document{Level: LevelLarge, Tokens: n, Chunks: chunks}, err
	}
}

// SplitAt halves a token sequence for callers that must keep prompts under
// a budget. It returns the text before and after the middle token.
func (s *Splitter) SplitAt(text string) (string, string, error) {
	ids, _, err := s.tok.Encode(text)
	if err != nil {
		return "", "", fmt.Errorf("encode: %w", err)
	}
	mid := len(ids) / 2
	first, err := s.tok.Decode(ids[:mid])
	if err != nil {
		return "", "", fmt.Errorf("decode: %w", err)
	}
	second, err := s.tok.Decode(ids[mid:])
	if err != nil {
		return "", "", fmt.Errorf("decode: %w", err)
	}
	return first, second, nil
}

func (s *Splitter) windows(ids []uint, pieces []string, level Level) ([]string, error) {
	size, overlap := s.opts.window(level)
	var chunks []string

	for start := 0; start < len(ids); {
		end := start + size
		if end >= len(ids) {
			end = len(ids)
		} else {
			end = boundary(pieces, start, end, size)
		}

		text, err := s.tok.Decode(ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("decode window at %d: %w", start, err)
		}
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, text)
		}
		if end == len(ids) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// boundary moves a window end back to just after a paragraph break or, when
// there is none, a sentence end, looking only at the last fifth of the
// window. It returns end unchanged when neither is found.
func boundary(pieces []string, start, end, size int) int {
	if len(pieces) < end {
		return end
	}
	floor := end - size/5
	if floor <= start {
		floor = start + 1
	}

	for i := end - 1; i >= floor; i-- {
		if strings.Contains(pieces[i], "\n\n") {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if endsSentence(pieces[i]) {
			return i + 1
		}
	}
	return end
}

func endsSentence(piece string) bool {
	if strings.Contains(piece, "\n") {
		return true
	}
	trimmed := strings.TrimRight(piece, " \t")
	return strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "!")
}
