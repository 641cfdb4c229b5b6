// Package main is the batch enrichment CLI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/app"
	"github.com/thebtf/docenrich/internal/config"
	"github.com/thebtf/docenrich/internal/pipeline"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	modeFlag := flag.String("mode", "single", "Run mode: single or all")
	collection := flag.String("collection", "", "Collection to process in single mode")
	limit := flag.Int("limit", 0, "Maximum documents per collection (0 = no limit)")
	batchSize := flag.Int("batch-size", 0, "Documents fetched per page (default from config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	mode, err := pipeline.ParseMode(*modeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -mode")
	}
	if mode == pipeline.ModeSingle && *collection == "" {
		log.Fatal().Msg("-collection is required in single mode")
	}

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *batchSize <= 0 {
		*batchSize = cfg.BatchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, nil, *debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	log.Info().
		Str("version", Version).
		Str("mode", string(mode)).
		Str("collection", *collection).
		Int("limit", *limit).
		Int("batchSize", *batchSize).
		Msg("Starting enrichment")

	opts := pipeline.BatchOptions{BatchSize: *batchSize, Limit: *limit}
	var results []*pipeline.CollectionResult
	if mode == pipeline.ModeAll && len(cfg.Collections) > 0 {
		// an explicit list overrides the collections found in the store
		for _, name := range cfg.Collections {
			r, runErr := a.Processor.ProcessCollection(ctx, name, opts)
			if r != nil {
				results = append(results, r)
			}
			if err = runErr; err != nil {
				break
			}
		}
	} else {
		results, err = a.Processor.Run(ctx, mode, *collection, opts)
	}

	var processed, failed int
	for _, r := range results {
		processed += r.Processed
		failed += r.Failed
	}
	log.Info().Int("collections", len(results)).Int("processed", processed).Int("failed", failed).Msg("Enrichment finished")

	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("Enrichment stopped")
	}
}
