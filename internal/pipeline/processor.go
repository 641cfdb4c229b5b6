// Package pipeline enriches documents: extract, chunk, embed, select
// representative chunks, summarize, extract keywords, then persist to the
// document store and the vector index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/docenrich/internal/chunking"
	"github.com/thebtf/docenrich/internal/embedding"
	"github.com/thebtf/docenrich/internal/extract"
	"github.com/thebtf/docenrich/internal/textclean"
	"github.com/thebtf/docenrich/internal/vector"
	"github.com/thebtf/docenrich/pkg/models"
	"github.com/thebtf/docenrich/pkg/similarity"
)

// clusterThreshold: documents with more chunks than this are clustered.
const clusterThreshold = 2

// Stage names the step a document failed in.
type Stage string

const (
	StageSource    Stage = "source"
	StageExtract   Stage = "extract"
	StageChunk     Stage = "chunk"
	StageEmbed     Stage = "embed"
	StageSummarize Stage = "summarize"
	StageKeywords  Stage = "keywords"
	StageIndex     Stage = "index"
	StageSave      Stage = "save"
)

// StageError is a document failure tagged with its stage.
type StageError struct {
	Err   error
	Stage Stage
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// DocumentStore is the part of the document store the pipeline uses.
type DocumentStore interface {
	CountDocuments(ctx context.Context, collection string) (int64, error)
	ListDocuments(ctx context.Context, collection string, offset, limit int) ([]*models.Document, error)
	ListCollections(ctx context.Context) ([]string, error)
	SaveEnrichment(ctx context.Context, id int64, e *models.Enrichment) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Journal records one row per processed document.
type Journal interface {
	RecordRun(ctx context.Context, r *models.RunRecord) (int64, error)
}

// Extractor fetches and converts a source to text.
type Extractor interface {
	Extract(ctx context.Context, source string) (extract.Result, error)
}

// Chunker splits text into chunks.
type Chunker interface {
	Split(text string) (chunking.Document, error)
}

// Summarizer produces one summary from passages and outliers.
type Summarizer interface {
	Summarize(ctx context.Context, passages, outliers []string) (string, error)
}

// KeywordExtractor produces a keyword list.
type KeywordExtractor interface {
	Extract(ctx context.Context, passages []string, longDocument bool) ([]string, error)
}

// CollectionCodes maps collection names to their point key codes.
type CollectionCodes interface {
	Code(name string) string
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Store      DocumentStore
	Journal    Journal
	Extractor  Extractor
	Chunker    Chunker
	Embedder   embedding.Embedder
	Summarizer Summarizer
	Keywords   KeywordExtractor
	Index      vector.Index
	Codes      CollectionCodes
	Events     EventSink
	Metrics    *Metrics
}

// Options tunes a Processor.
type Options struct {
	Cluster        similarity.Config
	ClusterTimeout time.Duration
	Collections    VectorCollections
}

// VectorCollections names the three vector collections.
type VectorCollections struct {
	Content string
	Summary string
	Keyword string
}

// DocumentResult describes one ProcessDocument call.
type DocumentResult struct {
	Err        error              `json:"-"`
	Collection string             `json:"collection"`
	ExternalID string             `json:"external_id"`
	Outcome    models.RunOutcome  `json:"outcome"`
	Stage      Stage              `json:"stage,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Keywords   []string           `json:"keywords,omitempty"`
	Metrics    similarity.Metrics `json:"metrics"`
	DocID      int64              `json:"doc_id"`
	Duration   time.Duration      `json:"duration"`
	Chunks     int                `json:"chunks"`
	Level      int                `json:"level"`
	Clusters   int                `json:"clusters"`
	Outliers   int                `json:"outliers"`
}

// Processor runs the enrichment pipeline.
type Processor struct {
	deps Deps
	opts Options
}

// NewProcessor validates deps and creates a Processor.
func NewProcessor(deps Deps, opts Options) (*Processor, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: document store is required")
	case deps.Extractor == nil, deps.Chunker == nil, deps.Embedder == nil:
		return nil, errors.New("pipeline: extractor, chunker and embedder are required")
	case deps.Summarizer == nil, deps.Keywords == nil:
		return nil, errors.New("pipeline: summarizer and keyword extractor are required")
	case deps.Index == nil, deps.Codes == nil:
		return nil, errors.New("pipeline: vector index and collection codes are required")
	}
	if deps.Events == nil {
		deps.Events = NopSink{}
	}
	if deps.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		deps.Metrics = m
	}
	if opts.ClusterTimeout <= 0 {
		opts.ClusterTimeout = 30 * time.Second
	}
	if opts.Cluster.MinClusterSize == 0 {
		opts.Cluster = similarity.DefaultConfig()
	}
	return &Processor{deps: deps, opts: opts}, nil
}

// ProcessDocument enriches one document. Already enriched documents are
// skipped. A returned error is a *StageError; the document is then marked
// failed and journaled, and the caller may move on to the next document.
func (p *Processor) ProcessDocument(ctx context.Context, collection string, doc *models.Document) (*DocumentResult, error) {
	start := time.Now()
	res := &DocumentResult{
		Collection: collection,
		DocID:      doc.ID,
		ExternalID: doc.ExternalID,
	}

	if doc.IsEnriched() {
		res.Outcome = models.RunSkipped
		p.finish(ctx, res, start)
		return res, nil
	}

	if err := p.enrich(ctx, collection, doc, res); err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: StageSave, Err: err}
		}
		res.Outcome = models.RunFailed
		res.Stage = se.Stage
		res.Err = se
		p.markFailed(ctx, doc, se)
		p.finish(ctx, res, start)
		return res, se
	}

	p.finish(ctx, res, start)
	return res, nil
}

func (p *Processor) enrich(ctx context.Context, collection string, doc *models.Document, res *DocumentResult) error {
	source := doc.SourceURL()
	if source == "" {
		return &StageError{Stage: StageSource, Err: extract.ErrNoSource}
	}

	extracted, err := p.deps.Extractor.Extract(ctx, source)
	if err != nil {
		return &StageError{Stage: StageExtract, Err: err}
	}
	text := textclean.Clean(extracted.Text)
	if textclean.IsBlank(text) {
		return &StageError{Stage: StageExtract, Err: extract.ErrNoText}
	}

	split, err := p.deps.Chunker.Split(text)
	if err != nil {
		return &StageError{Stage: StageChunk, Err: err}
	}
	chunks := split.Chunks
	res.Chunks = len(chunks)
	res.Level = int(split.Level)

	vectors, err := p.deps.Embedder.Embed(ctx, chunks)
	if err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}
	if len(vectors) != len(chunks) {
		return &StageError{Stage: StageEmbed, Err: fmt.Errorf("%d vectors for %d chunks", len(vectors), len(chunks))}
	}

	passages, outliers, longDocument := p.selectPassages(ctx, chunks, vectors, res)
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}

	summary, err := p.deps.Summarizer.Summarize(ctx, passages, outliers)
	if err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}
	if summary == "" {
		return &StageError{Stage: StageSummarize, Err: errors.New("empty summary")}
	}

	keywordPassages := append(append([]string(nil), passages...), outliers...)
	keywords, err := p.deps.Keywords.Extract(ctx, keywordPassages, longDocument)
	if err != nil {
		return &StageError{Stage: StageKeywords, Err: err}
	}
	if len(keywords) == 0 {
		return &StageError{Stage: StageKeywords, Err: errors.New("no keywords")}
	}
	res.Summary = summary
	res.Keywords = keywords

	summaryVec, keywordVec, err := p.embedDerived(ctx, summary, keywords)
	if err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}

	// vectors are written first: a failure leaves the document unenriched
	// and it is picked up again by the next run
	if err := p.index(ctx, collection, doc, source, keywords, embedding.Mean(vectors), summaryVec, keywordVec); err != nil {
		return &StageError{Stage: StageIndex, Err: err}
	}

	err = p.deps.Store.SaveEnrichment(ctx, doc.ID, &models.Enrichment{
		Summary:  summary,
		Chunks:   chunks,
		Keywords: keywords,
		Level:    int(split.Level),
	})
	if err != nil {
		return &StageError{Stage: StageSave, Err: err}
	}
	return nil
}

// selectPassages picks what the summarizer sees. Short documents go in
// whole; longer ones are reduced to one representative per cluster plus
// outliers. A failed or timed out selection falls back to every chunk.
func (p *Processor) selectPassages(ctx context.Context, chunks []string, vectors [][]float32, res *DocumentResult) (passages, outliers []string, longDocument bool) {
	if len(chunks) <= clusterThreshold {
		return chunks, nil, false
	}

	cctx, cancel := context.WithTimeout(ctx, p.opts.ClusterTimeout)
	defer cancel()
	sel := similarity.RunContext(cctx, p.opts.Cluster, chunks, vectors)

	res.Metrics = sel.Evaluation.Metrics
	if !sel.IsOK() {
		res.Outcome = models.RunDegenerate
	}
	if sel.Kind == similarity.Failed {
		log.Warn().
			Err(sel.Err()).
			Int64("docId", res.DocID).
			Int("chunks", len(chunks)).
			Msg("Cluster selection failed, summarizing every chunk")
		return chunks, nil, true
	}

	res.Clusters = len(sel.Representatives)
	res.Outliers = len(sel.Outliers)
	return sel.Representatives, sel.Outliers, true
}

// embedDerived embeds the summary and the keywords concurrently.
func (p *Processor) embedDerived(ctx context.Context, summary string, keywords []string) (summaryVec, keywordVec []float32, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.deps.Embedder.Embed(gctx, []string{summary})
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		if len(v) != 1 {
			return fmt.Errorf("summary: %d vectors", len(v))
		}
		summaryVec = v[0]
		return nil
	})
	g.Go(func() error {
		v, err := p.deps.Embedder.Embed(gctx, keywords)
		if err != nil {
			return fmt.Errorf("keywords: %w", err)
		}
		keywordVec = embedding.Mean(v)
		if keywordVec == nil {
			return errors.New("keywords: no vectors")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return summaryVec, keywordVec, nil
}

func (p *Processor) index(ctx context.Context, collection string, doc *models.Document, source string, keywords []string, contentVec, summaryVec, keywordVec []float32) error {
	if contentVec == nil {
		return errors.New("no content vector")
	}
	code := p.deps.Codes.Code(collection)
	contentKey := vector.ContentKey(code, doc.ID)
	summaryKey := vector.SummaryKey(code, doc.ID)
	cols := p.opts.Collections

	writes := []struct {
		collection string
		point      vector.Point
	}{
		{cols.Content, vector.Point{
			ID:      vector.PointID(contentKey),
			Vector:  contentVec,
			Payload: vector.DocumentPayload(contentKey, collection, doc.ID, doc.Title, source, keywords),
		}},
		{cols.Summary, vector.Point{
			ID:      vector.PointID(summaryKey),
			Vector:  summaryVec,
			Payload: vector.DocumentPayload(summaryKey, collection, doc.ID, doc.Title, source, keywords),
		}},
		{cols.Keyword, vector.Point{
			ID:      vector.PointID(summaryKey),
			Vector:  keywordVec,
			Payload: vector.DocumentPayload(summaryKey, collection, doc.ID, doc.Title, source, nil),
		}},
	}
	for _, w := range writes {
		if err := p.deps.Index.Upsert(ctx, w.collection, []vector.Point{w.point}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) markFailed(ctx context.Context, doc *models.Document, se *StageError) {
	log.Error().
		Err(se.Err).
		Str("stage", string(se.Stage)).
		Int64("docId", doc.ID).
		Str("externalId", doc.ExternalID).
		Msg("Document enrichment failed")

	if ctx.Err() != nil {
		// the run is shutting down; the document stays pending
		return
	}
	if err := p.deps.Store.MarkFailed(ctx, doc.ID, se.Error()); err != nil {
		log.Warn().Err(err).Int64("docId", doc.ID).Msg("Failed to mark document failed")
	}
}

// finish journals, records metrics and publishes the event.
func (p *Processor) finish(ctx context.Context, res *DocumentResult, start time.Time) {
	res.Duration = time.Since(start)
	if res.Outcome == "" {
		res.Outcome = models.RunOK
	}

	if p.deps.Journal != nil {
		rec := models.NewRunRecord(res.Collection, res.ExternalID, res.Outcome, res.Duration)
		rec.Chunks, rec.Level = res.Chunks, res.Level
		rec.Clusters, rec.Outliers = res.Clusters, res.Outliers
		rec.SetMetrics(res.Metrics.Silhouette, res.Metrics.DaviesBouldin, res.Metrics.CalinskiHarabasz)
		rec.SetReason(res.Err)
		// journal writes outlive a canceled run
		if _, err := p.deps.Journal.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn().Err(err).Int64("docId", res.DocID).Msg("Failed to journal run")
		}
	}

	p.deps.Metrics.record(ctx, res)
	p.deps.Events.Publish(documentEvent(res))

	if res.Outcome != models.RunFailed {
		log.Info().
			Str("collection", res.Collection).
			Int64("docId", res.DocID).
			Str("outcome", string(res.Outcome)).
			Int("chunks", res.Chunks).
			Int("clusters", res.Clusters).
			Int("outliers", res.Outliers).
			Dur("took", res.Duration).
			Msg("Document processed")
	}
}
