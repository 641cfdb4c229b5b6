package models

import (
	"database/sql"
	"time"

	"github.com/goccy/go-json"
)

// RunOutcome is how processing a single document ended.
type RunOutcome string

const (
	RunOK         RunOutcome = "ok"
	RunDegenerate RunOutcome = "degenerate"
	RunFailed     RunOutcome = "failed"
	RunSkipped    RunOutcome = "skipped"
)

// RunRecord is one row of the run journal.
type RunRecord struct {
	CreatedAt        string          `db:"created_at" json:"created_at"`
	Collection       string          `db:"collection" json:"collection"`
	DocID            string          `db:"doc_id" json:"doc_id"`
	Outcome          RunOutcome      `db:"outcome" json:"outcome"`
	Reason           sql.NullString  `db:"reason" json:"reason,omitempty"`
	Silhouette       sql.NullFloat64 `db:"silhouette" json:"silhouette,omitempty"`
	DaviesBouldin    sql.NullFloat64 `db:"davies_bouldin" json:"davies_bouldin,omitempty"`
	CalinskiHarabasz sql.NullFloat64 `db:"calinski_harabasz" json:"calinski_harabasz,omitempty"`
	ID               int64           `db:"id" json:"id"`
	Chunks           int             `db:"chunks" json:"chunks"`
	Level            int             `db:"level" json:"level"`
	Clusters         int             `db:"clusters" json:"clusters"`
	Outliers         int             `db:"outliers" json:"outliers"`
	DurationMs       int64           `db:"duration_ms" json:"duration_ms"`
	CreatedAtEpoch   int64           `db:"created_at_epoch" json:"created_at_epoch"`
}

// NewRunRecord stamps a journal row with the current time.
func NewRunRecord(collection, docID string, outcome RunOutcome, took time.Duration) *RunRecord {
	now := time.Now()
	return &RunRecord{
		Collection:     collection,
		DocID:          docID,
		Outcome:        outcome,
		DurationMs:     took.Milliseconds(),
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}
}

// SetReason records why the run did not end OK.
func (r *RunRecord) SetReason(err error) {
	if err == nil {
		r.Reason = sql.NullString{}
		return
	}
	r.Reason = sql.NullString{String: err.Error(), Valid: true}
}

// SetMetrics copies clustering scores; nil scores stay NULL.
func (r *RunRecord) SetMetrics(silhouette, daviesBouldin, calinskiHarabasz *float64) {
	r.Silhouette = nullFloat(silhouette)
	r.DaviesBouldin = nullFloat(daviesBouldin)
	r.CalinskiHarabasz = nullFloat(calinskiHarabasz)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// RunRecordJSON is the API shape of RunRecord: NULL columns become absent
// fields instead of {"Valid": false} objects.
type RunRecordJSON struct {
	CreatedAt        string     `json:"created_at"`
	Collection       string     `json:"collection"`
	DocID            string     `json:"doc_id"`
	Outcome          RunOutcome `json:"outcome"`
	Reason           string     `json:"reason,omitempty"`
	Silhouette       *float64   `json:"silhouette,omitempty"`
	DaviesBouldin    *float64   `json:"davies_bouldin,omitempty"`
	CalinskiHarabasz *float64   `json:"calinski_harabasz,omitempty"`
	ID               int64      `json:"id"`
	Chunks           int        `json:"chunks"`
	Level            int        `json:"level"`
	Clusters         int        `json:"clusters"`
	Outliers         int        `json:"outliers"`
	DurationMs       int64      `json:"duration_ms"`
	CreatedAtEpoch   int64      `json:"created_at_epoch"`
}

// MarshalJSON implements json.Marshaler for RunRecord.
func (r *RunRecord) MarshalJSON() ([]byte, error) {
	j := RunRecordJSON{
		ID:             r.ID,
		Collection:     r.Collection,
		DocID:          r.DocID,
		Outcome:        r.Outcome,
		Chunks:         r.Chunks,
		Level:          r.Level,
		Clusters:       r.Clusters,
		Outliers:       r.Outliers,
		DurationMs:     r.DurationMs,
		CreatedAt:      r.CreatedAt,
		CreatedAtEpoch: r.CreatedAtEpoch,
	}
	if r.Reason.Valid {
		j.Reason = r.Reason.String
	}
	if r.Silhouette.Valid {
		j.Silhouette = &r.Silhouette.Float64
	}
	if r.DaviesBouldin.Valid {
		j.DaviesBouldin = &r.DaviesBouldin.Float64
	}
	if r.CalinskiHarabasz.Valid {
		j.CalinskiHarabasz = &r.CalinskiHarabasz.Float64
	}
	return json.Marshal(j)
}

// CollectionStats aggregates journal rows for one collection.
type CollectionStats struct {
	Collection    string  `json:"collection"`
	Total         int64   `json:"total"`
	OK            int64   `json:"ok"`
	Degenerate    int64   `json:"degenerate"`
	Failed        int64   `json:"failed"`
	Skipped       int64   `json:"skipped"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
