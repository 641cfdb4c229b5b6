// Package worker is the long-running HTTP service: it exposes enrichment,
// clustering and search over a chi router and streams progress as SSE.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/config"
	"github.com/thebtf/docenrich/internal/pipeline"
	"github.com/thebtf/docenrich/internal/search"
	"github.com/thebtf/docenrich/internal/worker/sse"
	"github.com/thebtf/docenrich/pkg/models"
	"github.com/thebtf/docenrich/pkg/similarity"
)

// InboxCollection holds documents dropped into the inbox directory.
const InboxCollection = "inbox"

// DocumentStore is what the worker needs from the document store.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, externalID string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, bool, error)
}

// RunJournal reads the run journal.
type RunJournal interface {
	RecentRuns(ctx context.Context, collection string, limit int) ([]*models.RunRecord, error)
	Stats(ctx context.Context) ([]*models.CollectionStats, error)
}

// Searcher answers search queries.
type Searcher interface {
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error)
}

// Processor runs the enrichment pipeline.
type Processor interface {
	ProcessDocument(ctx context.Context, collection string, doc *models.Document) (*pipeline.DocumentResult, error)
	ProcessCollection(ctx context.Context, collection string, opts pipeline.BatchOptions) (*pipeline.CollectionResult, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Documents   DocumentStore
	Journal     RunJournal
	Searcher    Searcher
	Processor   Processor
	Broadcaster *sse.Broadcaster
	// Cluster is the default configuration of POST /api/cluster.
	Cluster similarity.Config
	// IsNotFound classifies document store lookups.
	IsNotFound func(error) bool
}

// Service is the worker HTTP service.
type Service struct {
	startTime      time.Time
	ctx            context.Context
	config         *config.Config
	deps           Deps
	sseBroadcaster *sse.Broadcaster
	router         chi.Router
	server         *http.Server
	cancel         context.CancelFunc
	jobs           map[string]time.Time
	version        string
	wg             sync.WaitGroup
	jobsMu         sync.Mutex
	ready          atomic.Bool
}

// New wires a Service. The service is not ready until Start is called.
func New(version string, cfg *config.Config, deps Deps) *Service {
	if deps.Broadcaster == nil {
		deps.Broadcaster = sse.NewBroadcaster()
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.Cluster.MinClusterSize == 0 {
		deps.Cluster = similarity.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        version,
		config:         cfg,
		deps:           deps,
		sseBroadcaster: deps.Broadcaster,
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		jobs:           make(map[string]time.Time),
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/version", s.handleVersion)
	r.Get("/api/events", s.sseBroadcaster.HandleSSE)

	r.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/runs", s.handleRuns)
		r.Get("/api/search", s.handleSearch)
		r.Post("/api/cluster", s.handleCluster)
		r.Post("/api/documents/{collection}/{id}/process", s.handleProcessDocument)
		r.Post("/api/collections/{collection}/process", s.handleProcessCollection)
	})
}

// Start listens on the configured host and port and serves until Shutdown.
// It returns once the listener is bound.
func (s *Service) Start() error {
	addr := net.JoinHostPort(s.config.WorkerHost, strconv.Itoa(s.config.WorkerPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Service) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Worker HTTP server stopped")
		}
	}()

	s.ready.Store(true)
	log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).Msg("Worker started")
	return nil
}

// Shutdown stops accepting requests, cancels background jobs and waits for
// them to finish or ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	s.sseBroadcaster.Close()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}

	log.Info().Dur("uptime", time.Since(s.startTime)).Msg("Worker stopped")
	return err
}

// goBackground runs fn on a tracked goroutine bound to the service context.
func (s *Service) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// claimJob marks a collection as running; false if it already is.
func (s *Service) claimJob(collection string) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, running := s.jobs[collection]; running {
		return false
	}
	s.jobs[collection] = time.Now()
	return true
}

func (s *Service) releaseJob(collection string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	delete(s.jobs, collection)
}

// runningJobs lists collections with a background run in progress.
func (s *Service) runningJobs() map[string]time.Time {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
