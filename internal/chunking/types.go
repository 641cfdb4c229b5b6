// Package chunking splits extracted document text into token-bounded chunks
// for embedding and clustering. Short documents stay whole; longer ones are
// cut into overlapping windows whose size grows with the document.
package chunking

import (
	"errors"

	"github.com/tiktoken-go/tokenizer"
)

// Level records which windowing tier produced the chunks.
type Level int

const (
	// LevelSingle keeps the whole text as one chunk.
	LevelSingle Level = 1
	// LevelMedium uses medium windows.
	LevelMedium Level = 2
	// LevelLarge uses large windows.
	LevelLarge Level = 3
)

// ErrEmptyText is returned for text with no tokens.
var ErrEmptyText = errors.New("empty text")

// Document is the result of splitting one text.
type Document struct {
	Chunks []string
	Level  Level
	Tokens int
}

// Tokenizer is the subset of a BPE codec the splitter needs.
// tokenizer.Codec satisfies it.
type Tokenizer interface {
	Encode(text string) ([]uint, []string, error)
	Decode(ids []uint) (string, error)
}

// NewTokenizer returns the cl100k_base codec used by the embedding models.
func NewTokenizer() (Tokenizer, error) {
	return tokenizer.Get(tokenizer.Cl100kBase)
}

// Options controls the tier thresholds and window geometry.
type Options struct {
	// SingleChunkTokens: texts below this many tokens are one chunk.
	SingleChunkTokens int
	// MediumDocTokens: texts below this many tokens use medium windows.
	MediumDocTokens int
	MediumSize      int
	MediumOverlap   int
	LargeSize       int
	LargeOverlap    int
}

// DefaultOptions returns the thresholds the corpus was indexed with.
func DefaultOptions() Options {
	return Options{
		SingleChunkTokens: 2536,
		MediumDocTokens:   11264,
		MediumSize:        768,
		MediumOverlap:     128,
		LargeSize:         1536,
		LargeOverlap:      512,
	}
}

func (o Options) window(level Level) (size, overlap int) {
	if level == LevelLarge {
		return o.LargeSize, o.LargeOverlap
	}
	return o.MediumSize, o.MediumOverlap
}
