// Package main runs the enrichment worker: the HTTP API plus the inbox
// watcher.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/app"
	"github.com/thebtf/docenrich/internal/config"
	docstore "github.com/thebtf/docenrich/internal/db/gorm"
	"github.com/thebtf/docenrich/internal/extract"
	"github.com/thebtf/docenrich/internal/pipeline"
	"github.com/thebtf/docenrich/internal/watcher"
	"github.com/thebtf/docenrich/internal/worker"
	"github.com/thebtf/docenrich/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	noInbox := flag.Bool("no-inbox", false, "Do not watch the inbox directory")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := sse.NewBroadcaster()
	events := pipeline.EventSinkFunc(func(e pipeline.Event) {
		broadcaster.BroadcastEvent(e.Type, e)
	})

	a, err := app.Build(ctx, cfg, events, *debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	svc := worker.New(Version, cfg, worker.Deps{
		Documents:   a.Documents,
		Journal:     a.Runs,
		Searcher:    a.Search,
		Processor:   a.Processor,
		Broadcaster: broadcaster,
		Cluster:     app.ClusterConfig(cfg),
		IsNotFound:  func(err error) bool { return errors.Is(err, docstore.ErrNotFound) },
	})
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}

	var inbox *watcher.Watcher
	if !*noInbox && cfg.InboxDir != "" {
		inbox, err = watcher.New(cfg.InboxDir, svc.HandleInboxFile, watcher.Options{
			Accept:       extract.SupportedExtension,
			ScanExisting: true,
		})
		if err == nil {
			err = inbox.Start()
		}
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.InboxDir).Msg("Inbox watcher disabled")
			inbox = nil
		}
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down worker")

	if inbox != nil {
		if err := inbox.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop inbox watcher")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown incomplete")
	}
}
