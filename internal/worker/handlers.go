package worker

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/internal/pipeline"
	"github.com/thebtf/docenrich/internal/search"
	"github.com/thebtf/docenrich/pkg/similarity"
)

const (
	defaultRunsLimit   = 50
	maxClusterBodySize = 64 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"sse_clients": s.sseBroadcaster.ClientCount(),
		"running":     s.runningJobs(),
	}
	if s.deps.Journal != nil {
		stats, err := s.deps.Journal.Stats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to read journal stats")
			writeError(w, http.StatusInternalServerError, "journal unavailable")
			return
		}
		resp["collections"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.deps.Journal.RecentRuns(r.Context(), r.URL.Query().Get("collection"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read runs")
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search disabled")
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.deps.Searcher.Search(r.Context(), search.SearchParams{
		Query:      q.Get("query"),
		Collection: q.Get("collection"),
		Limit:      limit,
	})
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is required")
		return
	case err != nil:
		log.Error().Err(err).Msg("Search failed")
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClusterRequest is the body of POST /api/cluster.
type ClusterRequest struct {
	// Config overrides individual fields of the worker's clustering defaults.
	Config     json.RawMessage `json:"config,omitempty"`
	Chunks     []string        `json:"chunks"`
	Embeddings [][]float64     `json:"embeddings"`
}

// ClusterResponse is the reply of POST /api/cluster.
type ClusterResponse struct {
	Medoids         map[int]int        `json:"medoids"`
	Outcome         similarity.Kind    `json:"outcome"`
	Reason          string             `json:"reason,omitempty"`
	Labels          []int              `json:"labels"`
	Representatives []string           `json:"representatives"`
	Outliers        []string           `json:"outliers"`
	Metrics         similarity.Metrics `json:"metrics"`
}

func (s *Service) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req ClusterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClusterBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Chunks) == 0 || len(req.Chunks) != len(req.Embeddings) {
		writeError(w, http.StatusBadRequest, "chunks and embeddings must be non-empty and of equal length")
		return
	}
	cfg, err := s.clusterConfig(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid config")
		return
	}

	timeout := s.config.ClusterTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	res := similarity.RunContext(ctx, cfg, req.Chunks, req.Embeddings)

	resp := ClusterResponse{
		Labels:          res.Assignment.Labels,
		Medoids:         res.Assignment.Medoids,
		Representatives: res.Representatives,
		Outliers:        res.Outliers,
		Metrics:         res.Evaluation.Metrics,
		Outcome:         res.Kind,
	}
	if res.Reason != nil {
		resp.Reason = res.Reason.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// clusterConfig decodes raw over the configured defaults, so fields the
// caller leaves out keep their configured values.
func (s *Service) clusterConfig(raw json.RawMessage) (similarity.Config, error) {
	cfg := s.deps.Cluster
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return s.deps.Cluster, err
	}
	return cfg, nil
}

// processResponse carries a DocumentResult and its error text.
type processResponse struct {
	*pipeline.DocumentResult
	Error string `json:"error,omitempty"`
}

func (s *Service) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")

	doc, err := s.deps.Documents.GetDocument(r.Context(), collection, id)
	if err != nil {
		if s.deps.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Failed to load document")
		writeError(w, http.StatusInternalServerError, "document store unavailable")
		return
	}

	res, err := s.deps.Processor.ProcessDocument(r.Context(), collection, doc)
	resp := processResponse{DocumentResult: res}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Service) handleProcessCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batchSize, err := queryInt(r, "batch_size", s.config.BatchSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.claimJob(collection) {
		writeError(w, http.StatusConflict, "collection is already being processed")
		return
	}

	opts := pipeline.BatchOptions{BatchSize: batchSize, Limit: limit}
	s.goBackground(func(ctx context.Context) {
		defer s.releaseJob(collection)
		if _, err := s.deps.Processor.ProcessCollection(ctx, collection, opts); err != nil {
			log.Error().Err(err).Str("collection", collection).Msg("Collection run stopped")
		}
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"collection": collection,
		"status":     "started",
		"limit":      limit,
		"batch_size": batchSize,
	})
}
