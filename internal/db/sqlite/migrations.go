package sqlite

import (
	"context"
	"database/sql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		outcome TEXT NOT NULL CHECK (outcome IN ('ok', 'degenerate', 'failed', 'skipped')),
		reason TEXT,
		chunks INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		clusters INTEGER NOT NULL DEFAULT 0,
		outliers INTEGER NOT NULL DEFAULT 0,
		silhouette REAL,
		davies_bouldin REAL,
		calinski_harabasz REAL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		created_at_epoch INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at_epoch DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_collection ON runs(collection, created_at_epoch DESC)`,
}

// migrate creates the journal schema. Every statement is idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
