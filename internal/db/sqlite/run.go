package sqlite

import (
	"context"
	"errors"

	"github.com/thebtf/docenrich/pkg/models"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// RunStore records one journal row per processed document.
type RunStore struct {
	store *Store
}

// NewRunStore creates a new run store.
func NewRunStore(store *Store) *RunStore {
	return &RunStore{store: store}
}

// RecordRun appends a row and returns its id.
func (s *RunStore) RecordRun(ctx context.Context, r *models.RunRecord) (int64, error) {
	if r == nil {
		return 0, errors.New("record run: nil record")
	}
	const query = `
		INSERT INTO runs
		(collection, doc_id, outcome, reason, chunks, level, clusters, outliers,
		 silhouette, davies_bouldin, calinski_harabasz, duration_ms, created_at, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.store.ExecContext(ctx, query,
		r.Collection, r.DocID, string(r.Outcome), r.Reason,
		r.Chunks, r.Level, r.Clusters, r.Outliers,
		r.Silhouette, r.DaviesBouldin, r.CalinskiHarabasz,
		r.DurationMs, r.CreatedAt, r.CreatedAtEpoch,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// RecentRuns returns the newest rows first. An empty collection means all.
func (s *RunStore) RecentRuns(ctx context.Context, collection string, limit int) ([]*models.RunRecord, error) {
	limit = clampLimit(limit, defaultRunLimit, maxRunLimit)

	const query = `SELECT ` + runColumns + `
		FROM runs
		WHERE (? = '' OR collection = ?)
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?`

	rows, err := s.store.QueryContext(ctx, query, collection, collection, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRunRows(rows)
}

// Stats aggregates outcomes per collection, ordered by collection name.
func (s *RunStore) Stats(ctx context.Context) ([]*models.CollectionStats, error) {
	const query = `
		SELECT collection,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'ok' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'degenerate' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'skipped' THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM runs
		GROUP BY collection
		ORDER BY collection`

	rows, err := s.store.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CollectionStats
	for rows.Next() {
		var st models.CollectionStats
		if err := rows.Scan(&st.Collection, &st.Total, &st.OK, &st.Degenerate,
			&st.Failed, &st.Skipped, &st.AvgDurationMs); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
