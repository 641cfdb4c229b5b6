package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/docenrich/pkg/models"
)

const meterName = "github.com/thebtf/docenrich/internal/pipeline"

// Metrics instruments document processing.
type Metrics struct {
	processed metric.Int64Counter
	skipped   metric.Int64Counter
	failed    metric.Int64Counter
	clusters  metric.Int64Counter
	outliers  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments. A nil meter uses the
// global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}

	counterDefs := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&m.processed, "docenrich.documents.processed", "Documents enriched successfully"},
		{&m.skipped, "docenrich.documents.skipped", "Documents skipped because they were already enriched"},
		{&m.failed, "docenrich.documents.failed", "Documents whose enrichment failed, by stage"},
		{&m.clusters, "docenrich.clusters.found", "Chunk clusters found across documents"},
		{&m.outliers, "docenrich.clusters.outliers", "Outlier chunks found across documents"},
	}
	for _, def := range counterDefs {
		counter, err := meter.Int64Counter(def.name, metric.WithDescription(def.description), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", def.name, err)
		}
		*def.target = counter
	}

	hist, err := meter.Float64Histogram(
		"docenrich.document.duration",
		metric.WithDescription("Time spent processing one document"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	m.duration = hist
	return m, nil
}

func (m *Metrics) record(ctx context.Context, r *DocumentResult) {
	attrs := metric.WithAttributes(
		attribute.String("collection", r.Collection),
		attribute.String("outcome", string(r.Outcome)),
	)
	switch r.Outcome {
	case models.RunSkipped:
		m.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", r.Collection)))
		return
	case models.RunFailed:
		m.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collection", r.Collection),
			attribute.String("stage", string(r.Stage)),
		))
	default:
		m.processed.Add(ctx, 1, attrs)
		m.clusters.Add(ctx, int64(r.Clusters), metric.WithAttributes(attribute.String("collection", r.Collection)))
		m.outliers.Add(ctx, int64(r.Outliers), metric.WithAttributes(attribute.String("collection", r.Collection)))
	}
	m.duration.Record(ctx, r.Duration.Seconds(), attrs)
}
