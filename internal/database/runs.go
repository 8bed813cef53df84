package database

import (
	"context"
	"time"
)

// RecordSyncRun stores one sync journal row. Recording the same ID twice
// overwrites the earlier row.
func (d *Database) RecordSyncRun(ctx context.Context, run SyncRun) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_sync_run", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, source, started_at, finished_at, status,
			processed, skipped, failed, unprocessed, entries_created, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			unprocessed = excluded.unprocessed,
			entries_created = excluded.entries_created,
			error = excluded.error
	`, run.ID, run.Source, run.StartedAt.UTC().UnixNano(), run.FinishedAt.UTC().UnixNano(), string(run.Status),
		run.Processed, run.Skipped, run.Failed, run.Unprocessed, run.EntriesCreated, run.Error)
	return err
}

// ListSyncRuns returns the most recent runs first. An empty source lists
// every source; limit <= 0 means no limit.
func (d *Database) ListSyncRuns(ctx context.Context, source string, limit int) ([]SyncRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_sync_runs", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT id, source, started_at, finished_at, status,
		processed, skipped, failed, unprocessed, entries_created, error
		FROM sync_runs`
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		var started, finished int64
		var status string
		if err = rows.Scan(&r.ID, &r.Source, &started, &finished, &status,
			&r.Processed, &r.Skipped, &r.Failed, &r.Unprocessed, &r.EntriesCreated, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		r.Status = SyncStatus(status)
		runs = append(runs, r)
	}
	err = rows.Err()
	return runs, err
}
