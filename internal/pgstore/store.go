package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backup-timeline/internal/database"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id BIGSERIAL PRIMARY KEY,
	schema TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date_on_timeline TIMESTAMPTZ NOT NULL,
	extra_attributes JSONB NOT NULL DEFAULT '{}',
	source TEXT GENERATED ALWAYS AS (extra_attributes->>'source') STORED,
	backup_date TEXT GENERATED ALWAYS AS (extra_attributes->>'backup_date') STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_entries_source_backup ON entries(source, backup_date);
CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date_on_timeline);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	unprocessed INTEGER NOT NULL DEFAULT 0,
	entries_created INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_source ON sync_runs(source, started_at);

CREATE TABLE IF NOT EXISTS pending_backups (
	source TEXT NOT NULL,
	backup_date TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, backup_date)
);
`

// Store is a PostgreSQL entry store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and creates the schema if needed.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	logging.Info("Connected to PostgreSQL entry store")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// LatestBackupDate returns the most recent backup_date recorded for source.
func (s *Store) LatestBackupDate(ctx context.Context, source string) (time.Time, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("latest_backup_date", start, err) }()

	var latest *string
	err = s.pool.QueryRow(ctx, `
		SELECT MAX(backup_date) FROM entries
		WHERE source = $1 AND backup_date IS NOT NULL`, source).Scan(&latest)
	if err != nil {
		return time.Time{}, false, err
	}
	if latest == nil || *latest == "" {
		return time.Time{}, false, nil
	}

	t, err := database.ParseBackupDate(*latest)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// ReplaceBackupEntries deletes the (source, backupDate) entry set and its
// pending mark and copies entries in, in one transaction.
func (s *Store) ReplaceBackupEntries(ctx context.Context, source string, backupDate time.Time, entries []database.Entry) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_backup_entries", start, err) }()

	date := database.FormatBackupDate(backupDate)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		outcome := "commit"
		if err != nil {
			outcome = "rollback"
		}
		metrics.DBTransactionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM entries WHERE source = $1 AND backup_date = $2`, source, date); err != nil {
		return 0, fmt.Errorf("delete previous entries: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM pending_backups WHERE source = $1 AND backup_date = $2`, source, date); err != nil {
		return 0, fmt.Errorf("clear pending mark: %w", err)
	}

	rows := make([][]any, 0, len(entries))
	for i := range entries {
		e := entries[i]
		e.Attributes.Source = source
		e.Attributes.BackupDate = date

		var attrs []byte
		attrs, err = e.Attributes.MarshalJSON()
		if err != nil {
			return 0, fmt.Errorf("encode attributes for %s: %w", e.Attributes.Path, err)
		}
		rows = append(rows, []any{e.Schema, e.Title, e.Description, e.DateOnTimeline.UTC(), attrs})
	}

	var copied int64
	copied, err = tx.CopyFrom(ctx,
		pgx.Identifier{"entries"},
		[]string{"schema", "title", "description", "date_on_timeline", "extra_attributes"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy entries: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(copied), nil
}

// MarkBackupPending records that (source, backupDate) failed to sync.
func (s *Store) MarkBackupPending(ctx context.Context, source string, backupDate time.Time, reason string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_backup_pending", start, err) }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pending_backups (source, backup_date, error)
		VALUES ($1, $2, $3)
		ON CONFLICT (source, backup_date) DO UPDATE SET
			error = EXCLUDED.error,
			recorded_at = now()`,
		source, database.FormatBackupDate(backupDate), reason)
	return err
}

// PendingBackups returns the pending backup dates of source, oldest first.
func (s *Store) PendingBackups(ctx context.Context, source string) ([]time.Time, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("pending_backups", start, err) }()

	rows, err := s.pool.Query(ctx,
		`SELECT backup_date FROM pending_backups WHERE source = $1 ORDER BY backup_date`, source)
	if err != nil {
		return nil, err
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		var t time.Time
		if t, err = database.ParseBackupDate(r); err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, nil
}

func where(f database.EntryFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v string) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Source != "" {
		add("source", f.Source)
	}
	if f.BackupDate != "" {
		add("backup_date", f.BackupDate)
	}
	if f.Schema != "" {
		add("schema", f.Schema)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListEntries returns entries matching filter, ordered by timeline date.
func (s *Store) ListEntries(ctx context.Context, filter database.EntryFilter) ([]database.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_entries", start, err) }()

	cond, args := where(filter)
	query := `SELECT id, schema, title, description, date_on_timeline, extra_attributes, created_at
		FROM entries` + cond + ` ORDER BY date_on_timeline, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []database.Entry
	for rows.Next() {
		var e database.Entry
		var attrs []byte
		if err = rows.Scan(&e.ID, &e.Schema, &e.Title, &e.Description, &e.DateOnTimeline, &attrs, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err = sonic.ConfigStd.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("entry %d has invalid attributes: %w", e.ID, err)
		}
		e.DateOnTimeline = e.DateOnTimeline.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}

// CountEntries returns the number of entries matching filter.
func (s *Store) CountEntries(ctx context.Context, filter database.EntryFilter) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_entries", start, err) }()

	cond, args := where(filter)
	var n int
	err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM entries"+cond, args...).Scan(&n)
	return n, err
}

// GetStats returns entry totals grouped by schema.
func (s *Store) GetStats(ctx context.Context) (database.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	stats := database.Stats{EntriesBySchema: make(map[string]int)}
	rows, err := s.pool.Query(ctx, `SELECT schema, COUNT(*) FROM entries GROUP BY schema`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err = rows.Scan(&name, &n); err != nil {
			return stats, err
		}
		stats.EntriesBySchema[name] = n
		stats.TotalEntries += n
	}
	if err = rows.Err(); err != nil {
		return stats, err
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT source) FROM entries WHERE source IS NOT NULL`).Scan(&stats.Sources)
	return stats, err
}

// SourceSummaries aggregates entry and backup counts per source.
func (s *Store) SourceSummaries(ctx context.Context) ([]database.SourceSummary, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("source_summaries", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT source, COUNT(*), COUNT(DISTINCT backup_date), COALESCE(MAX(backup_date), '')
		FROM entries
		WHERE source IS NOT NULL
		GROUP BY source
		ORDER BY source`)
	if err != nil {
		return nil, err
	}
	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (database.SourceSummary, error) {
		var sum database.SourceSummary
		err := row.Scan(&sum.Source, &sum.Entries, &sum.Backups, &sum.LatestBackupAt)
		return sum, err
	})
	return summaries, err
}

// TimelineStats adapts GetStats for the metrics collector.
func (s *Store) TimelineStats(ctx context.Context) (metrics.Stats, error) {
	st, err := s.GetStats(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{TotalEntries: st.TotalEntries, EntriesBySchema: st.EntriesBySchema, Sources: st.Sources}, nil
}

// RecordSyncRun upserts one sync journal row.
func (s *Store) RecordSyncRun(ctx context.Context, run database.SyncRun) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_sync_run", start, err) }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, source, started_at, finished_at, status,
			processed, skipped, failed, unprocessed, entries_created, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			processed = EXCLUDED.processed,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			unprocessed = EXCLUDED.unprocessed,
			entries_created = EXCLUDED.entries_created,
			error = EXCLUDED.error`,
		run.ID, run.Source, run.StartedAt.UTC(), run.FinishedAt.UTC(), string(run.Status),
		run.Processed, run.Skipped, run.Failed, run.Unprocessed, run.EntriesCreated, run.Error)
	return err
}

// ListSyncRuns returns the most recent runs first.
func (s *Store) ListSyncRuns(ctx context.Context, source string, limit int) ([]database.SyncRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_sync_runs", start, err) }()

	query := `SELECT id, source, started_at, finished_at, status,
		processed, skipped, failed, unprocessed, entries_created, error
		FROM sync_runs`
	var args []any
	if source != "" {
		args = append(args, source)
		query += " WHERE source = $1"
	}
	query += " ORDER BY started_at DESC, id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []database.SyncRun
	for rows.Next() {
		var r database.SyncRun
		var status string
		if err = rows.Scan(&r.ID, &r.Source, &r.StartedAt, &r.FinishedAt, &status,
			&r.Processed, &r.Skipped, &r.Failed, &r.Unprocessed, &r.EntriesCreated, &r.Error); err != nil {
			return nil, err
		}
		r.Status = database.SyncStatus(status)
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		runs = append(runs, r)
	}
	err = rows.Err()
	return runs, err
}

