package pipeline

import (
	"time"

	"github.com/thebtf/docenrich/pkg/models"
)

// Event types.
const (
	EventDocument   = "document"
	EventCollection = "collection"
)

// Event is a progress notification.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       string            `json:"type"`
	Collection string            `json:"collection"`
	ExternalID string            `json:"external_id,omitempty"`
	Outcome    models.RunOutcome `json:"outcome,omitempty"`
	Stage      Stage             `json:"stage,omitempty"`
	Error      string            `json:"error,omitempty"`
	DocID      int64             `json:"doc_id,omitempty"`
	Clusters   int               `json:"clusters,omitempty"`
	Outliers   int               `json:"outliers,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Processed  int               `json:"processed,omitempty"`
	Failed     int               `json:"failed,omitempty"`
}

// EventSink receives progress events. Publish must not block for long.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(e Event) { f(e) }

// NopSink drops every event.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}

func documentEvent(r *DocumentResult) Event {
	e := Event{
		Timestamp:  time.Now(),
		Type:       EventDocument,
		Collection: r.Collection,
		ExternalID: r.ExternalID,
		DocID:      r.DocID,
		Outcome:    r.Outcome,
		Stage:      r.Stage,
		Clusters:   r.Clusters,
		Outliers:   r.Outliers,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}
