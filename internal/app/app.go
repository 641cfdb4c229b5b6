// Package app wires the stores, clients and pipeline stages from config.
// Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/docenrich/internal/chunking"
	"github.com/thebtf/docenrich/internal/collections"
	"github.com/thebtf/docenrich/internal/config"
	docstore "github.com/thebtf/docenrich/internal/db/gorm"
	"github.com/thebtf/docenrich/internal/db/sqlite"
	"github.com/thebtf/docenrich/internal/embedding"
	"github.com/thebtf/docenrich/internal/extract"
	"github.com/thebtf/docenrich/internal/keywords"
	"github.com/thebtf/docenrich/internal/llm"
	"github.com/thebtf/docenrich/internal/pipeline"
	"github.com/thebtf/docenrich/internal/search"
	"github.com/thebtf/docenrich/internal/summarize"
	"github.com/thebtf/docenrich/internal/vector/qdrant"
	"github.com/thebtf/docenrich/pkg/similarity"
)

// App holds every long-lived component.
type App struct {
	Config      *config.Config
	Store       *docstore.Store
	Documents   *docstore.DocumentStore
	Journal     *sqlite.Store
	Runs        *sqlite.RunStore
	Embedder    *embedding.Client
	Index       *qdrant.Client
	Collections *collections.Registry
	Search      *search.Manager
	Processor   *pipeline.Processor
}

// ClusterConfig maps the clustering settings.
func ClusterConfig(cfg *config.Config) similarity.Config {
	c := similarity.DefaultConfig()
	if cfg.ClusterMethod != "" {
		c.Method = similarity.Method(cfg.ClusterMethod)
	}
	if cfg.ClusterMinSize > 0 {
		c.MinClusterSize = cfg.ClusterMinSize
	}
	if cfg.ClusterMinSamples > 0 {
		c.MinSamples = cfg.ClusterMinSamples
	}
	if cfg.ClusterNoiseDistance > 0 {
		c.NoiseDistance = cfg.ClusterNoiseDistance
	}
	return c
}

// ChunkOptions maps the chunking settings.
func ChunkOptions(cfg *config.Config) chunking.Options {
	return chunking.Options{
		SingleChunkTokens: cfg.SingleChunkTokens,
		MediumDocTokens:   cfg.MediumDocTokens,
		MediumSize:        cfg.MediumChunkSize,
		MediumOverlap:     cfg.MediumOverlap,
		LargeSize:         cfg.LargeChunkSize,
		LargeOverlap:      cfg.LargeOverlap,
	}
}

// VectorCollections names the three vector collections.
func VectorCollections(cfg *config.Config) pipeline.VectorCollections {
	return pipeline.VectorCollections{
		Content: cfg.ContentCollection,
		Summary: cfg.SummaryCollection,
		Keyword: cfg.KeywordCollection,
	}
}

// Build connects the stores and creates the pipeline. events may be nil.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, events pipeline.EventSink, debug bool) (_ *App, err error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DOCENRICH_DATABASE_DSN is not set")
	}
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Collections, err = loadCollections(cfg.CollectionsFile); err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	if a.Store, err = docstore.NewStore(ctx, docstore.Config{DSN: cfg.DatabaseDSN, MaxConns: cfg.MaxConns, LogLevel: logLevel}); err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	a.Documents = docstore.NewDocumentStore(a.Store)

	if a.Journal, err = sqlite.NewStore(ctx, sqlite.Config{Path: cfg.JournalPath}); err != nil {
		return nil, fmt.Errorf("run journal: %w", err)
	}
	a.Runs = sqlite.NewRunStore(a.Journal)

	timeout := cfg.HTTPTimeout()
	if a.Embedder, err = embedding.New(embedding.Config{
		BaseURL:    cfg.EmbeddingURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		BatchSize:  cfg.EmbeddingBatchSize,
		CacheSize:  cfg.EmbeddingCacheSize,
		Timeout:    timeout,
	}); err != nil {
		return nil, err
	}

	if a.Index, err = qdrant.New(qdrant.Config{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey, Timeout: timeout}); err != nil {
		return nil, err
	}
	cols := VectorCollections(cfg)
	for _, name := range []string{cols.Content, cols.Summary, cols.Keyword} {
		if err = a.Index.EnsureCollection(ctx, name, cfg.VectorSize); err != nil {
			return nil, fmt.Errorf("vector collection %s: %w", name, err)
		}
	}
	a.Search = search.NewManager(a.Embedder, a.Index, search.Collections{
		Content: cols.Content,
		Summary: cols.Summary,
		Keyword: cols.Keyword,
	})

	chat, err := llm.New(llm.Config{
		BaseURL:           cfg.LLMURL,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.Model,
		MaxTokens:         cfg.LLMMaxTokens,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Burst:             cfg.LLMConcurrency,
		Attempts:          cfg.LLMRetryAttempts,
		Timeout:           timeout,
	})
	if err != nil {
		return nil, err
	}

	tok, err := chunking.NewTokenizer()
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	splitter := chunking.NewSplitter(tok, ChunkOptions(cfg))

	metrics, err := pipeline.NewMetrics(nil)
	if err != nil {
		return nil, err
	}

	a.Processor, err = pipeline.NewProcessor(pipeline.Deps{
		Store:      a.Documents,
		Journal:    a.Runs,
		Extractor:  extract.New(timeout),
		Chunker:    splitter,
		Embedder:   a.Embedder,
		Summarizer: summarize.New(chat, splitter, summarize.Options{Concurrency: cfg.LLMConcurrency, CombineTokenLimit: cfg.CombineTokenLimit}),
		Keywords:   keywords.New(chat, keywords.Options{Concurrency: cfg.LLMConcurrency}),
		Index:      a.Index,
		Codes:      a.Collections,
		Events:     events,
		Metrics:    metrics,
	}, pipeline.Options{
		Cluster:        ClusterConfig(cfg),
		ClusterTimeout: cfg.ClusterTimeout(),
		Collections:    cols,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("qdrant", cfg.QdrantURL).
		Str("journal", cfg.JournalPath).
		Str("model", cfg.Model).
		Str("embeddingModel", cfg.EmbeddingModel).
		Int("collections", len(a.Collections.Names())).
		Msg("Pipeline ready")
	return a, nil
}

func loadCollections(path string) (*collections.Registry, error) {
	reg, err := collections.Load(path)
	if err != nil {
		return nil, fmt.Errorf("collections file: %w", err)
	}
	return reg, nil
}

// Close releases the stores.
func (a *App) Close() {
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run journal")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close document store")
		}
	}
}
