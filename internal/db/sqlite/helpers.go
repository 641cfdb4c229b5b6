package sqlite

import (
	"database/sql"

	"github.com/thebtf/docenrich/pkg/models"
)

const runColumns = `id, collection, doc_id, outcome, reason, chunks, level, clusters, outliers,
	silhouette, davies_bouldin, calinski_harabasz, duration_ms, created_at, created_at_epoch`

// scanRun scans a single run from a row scanner.
func scanRun(scanner interface{ Scan(...any) error }) (*models.RunRecord, error) {
	var r models.RunRecord
	if err := scanner.Scan(
		&r.ID, &r.Collection, &r.DocID, &r.Outcome, &r.Reason,
		&r.Chunks, &r.Level, &r.Clusters, &r.Outliers,
		&r.Silhouette, &r.DaviesBouldin, &r.CalinskiHarabasz,
		&r.DurationMs, &r.CreatedAt, &r.CreatedAtEpoch,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// scanRunRows scans multiple runs from rows.
func scanRunRows(rows *sql.Rows) ([]*models.RunRecord, error) {
	var runs []*models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// clampLimit bounds a requested row count.
func clampLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
