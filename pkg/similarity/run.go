package similarity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is what the summarization stage consumes.
type Result struct {
	Assignment      Assignment `json:"assignment"`
	Evaluation      Evaluation `json:"evaluation"`
	Representatives []string   `json:"representatives"`
	Outliers        []string   `json:"outliers"`
	Outcome
}

// Run clusters the chunk embeddings, picks one representative chunk per
// cluster and collects noise chunks as outliers. Metrics are computed for
// observability. Run never panics; a Failed result carries no
// representatives and no outliers, and the caller falls back to using every
// chunk.
func Run[T ~float32 | ~float64](cfg Config, chunks []string, embeddings [][]T) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := recovered("run", r)
			log.Error().Err(err).Int("chunks", len(chunks)).Msg("Cluster selection failed")
			res = Result{Outcome: failed(err)}
		}
	}()

	m, err := NewMatrix(embeddings)
	if err != nil {
		return Result{Outcome: failed(err)}
	}
	if len(chunks) != m.Rows() {
		return Result{Outcome: failed(fmt.Errorf("%d chunks for %d embeddings: %w", len(chunks), m.Rows(), ErrLengthMismatch))}
	}
	return runMatrix(cfg, chunks, m)
}

func runMatrix(cfg Config, chunks []string, m Matrix) Result {
	start := time.Now()

	a := Cluster(cfg, m)
	if a.Kind == Failed {
		log.Warn().Err(a.Reason).Int("chunks", len(chunks)).Msg("Clustering produced no labels")
		return Result{Assignment: a, Outcome: a.Outcome}
	}

	reps, outliers, err := SelectRepresentatives(chunks, a.Labels, m, a.Medoids)
	if err != nil {
		log.Error().Err(err).Msg("Representative selection failed")
		return Result{Assignment: a, Outcome: failed(err)}
	}

	ev := Evaluate(m, a.Labels)
	logEvaluation(len(chunks), len(reps), len(outliers), ev, time.Since(start))

	return Result{
		Assignment:      a,
		Evaluation:      ev,
		Representatives: reps,
		Outliers:        outliers,
		Outcome:         a.Outcome,
	}
}

// RunContext runs the selector on its own goroutine and gives up when ctx
// is done. The abandoned computation finishes in the background and its
// result is discarded.
func RunContext[T ~float32 | ~float64](ctx context.Context, cfg Config, chunks []string, embeddings [][]T) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: failed(err)}
	}

	done := make(chan Result, 1)
	go func() {
		done <- Run(cfg, chunks, embeddings)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Int("chunks", len(chunks)).Msg("Cluster selection abandoned")
		return Result{Outcome: failed(ctx.Err())}
	}
}

func logEvaluation(chunks, clusters, outliers int, ev Evaluation, took time.Duration) {
	e := log.Debug().
		Int("chunks", chunks).
		Int("clusters", clusters).
		Int("outliers", outliers).
		Str("evaluation", ev.Outcome.String()).
		Dur("took", took)
	if ev.Silhouette != nil {
		e = e.Float64("silhouette", *ev.Silhouette).
			Float64("daviesBouldin", *ev.DaviesBouldin).
			Float64("calinskiHarabasz", *ev.CalinskiHarabasz)
	}
	e.Msg("Cluster selection finished")
}
