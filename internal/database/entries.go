package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"backup-timeline/internal/metrics"
)

// LatestBackupDate returns the most recent backup_date recorded for source.
// The boolean is false when the source has no entries yet.
func (d *Database) LatestBackupDate(ctx context.Context, source string) (time.Time, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("latest_backup_date", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// backup_date is fixed-width UTC, so lexical MAX is chronological MAX.
	var latest sql.NullString
	err = d.db.QueryRowContext(ctx, `
		SELECT MAX(backup_date) FROM entries
		WHERE source = ? AND backup_date IS NOT NULL
	`, source).Scan(&latest)
	if err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, false, nil
	}

	t, perr := ParseBackupDate(latest.String)
	if perr != nil {
		err = perr
		return time.Time{}, false, err
	}
	return t, true, nil
}

// ReplaceBackupEntries deletes every entry of (source, backupDate) and inserts
// entries in a single transaction, which also clears the pair's pending mark. Each entry's Source and BackupDate
// attributes are set from the arguments. It returns the number of rows created.
func (d *Database) ReplaceBackupEntries(ctx context.Context, source string, backupDate time.Time, entries []Entry) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_backup_entries", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	date := FormatBackupDate(backupDate)

	b, err := d.beginBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	created, err := replaceInTx(ctx, b.tx, source, date, entries)
	if err = d.endBatch(b, err); err != nil {
		return 0, err
	}
	return created, nil
}

func replaceInTx(ctx context.Context, tx *sql.Tx, source, date string, entries []Entry) (int, error) {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE source = ? AND backup_date = ?`, source, date); err != nil {
		return 0, fmt.Errorf("failed to delete previous entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_backups WHERE source = ? AND backup_date = ?`, source, date); err != nil {
		return 0, fmt.Errorf("failed to clear pending mark: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (schema, title, description, date_on_timeline, extra_attributes)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := entries[i]
		e.Attributes.Source = source
		e.Attributes.BackupDate = date

		attrs, err := e.Attributes.MarshalJSON()
		if err != nil {
			return 0, fmt.Errorf("failed to encode attributes for %s: %w", e.Attributes.Path, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Schema, e.Title, e.Description,
			e.DateOnTimeline.UTC().UnixNano(), string(attrs)); err != nil {
			return 0, fmt.Errorf("failed to insert entry for %s: %w", e.Attributes.Path, err)
		}
	}
	return len(entries), nil
}

func (f EntryFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.BackupDate != "" {
		conds = append(conds, "backup_date = ?")
		args = append(args, f.BackupDate)
	}
	if f.Schema != "" {
		conds = append(conds, "schema = ?")
		args = append(args, f.Schema)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListEntries returns entries matching filter, ordered by timeline date.
func (d *Database) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where, args := filter.where()
	query := `SELECT id, schema, title, description, date_on_timeline, extra_attributes, created_at
		FROM entries` + where + ` ORDER BY date_on_timeline, id`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err = scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}

// CountEntries returns the number of entries matching filter. Limit and
// Offset are ignored.
func (d *Database) CountEntries(ctx context.Context, filter EntryFilter) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where, args := filter.where()
	var n int
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries"+where, args...).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, e *Entry) error {
	var date, created int64
	var attrs string
	if err := row.Scan(&e.ID, &e.Schema, &e.Title, &e.Description, &date, &attrs, &created); err != nil {
		return err
	}
	e.DateOnTimeline = time.Unix(0, date).UTC()
	e.CreatedAt = time.Unix(created, 0).UTC()
	if err := sonic.ConfigStd.UnmarshalFromString(attrs, &e.Attributes); err != nil {
		return fmt.Errorf("entry %d has invalid attributes: %w", e.ID, err)
	}
	return nil
}

// SourceSummaries aggregates entry and backup counts per source.
func (d *Database) SourceSummaries(ctx context.Context) ([]SourceSummary, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("source_summaries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT source, COUNT(*), COUNT(DISTINCT backup_date), MAX(backup_date)
		FROM entries
		WHERE source IS NOT NULL
		GROUP BY source
		ORDER BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SourceSummary
	for rows.Next() {
		var s SourceSummary
		var latest sql.NullString
		if err = rows.Scan(&s.Source, &s.Entries, &s.Backups, &latest); err != nil {
			return nil, err
		}
		s.LatestBackupAt = latest.String
		summaries = append(summaries, s)
	}
	err = rows.Err()
	return summaries, err
}

// GetStats returns entry totals grouped by schema.
func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := Stats{EntriesBySchema: make(map[string]int)}

	rows, err := d.db.QueryContext(ctx, `SELECT schema, COUNT(*) FROM entries GROUP BY schema`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema string
		var n int
		if err = rows.Scan(&schema, &n); err != nil {
			return stats, err
		}
		stats.EntriesBySchema[schema] = n
		stats.TotalEntries += n
	}
	if err = rows.Err(); err != nil {
		return stats, err
	}

	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT source) FROM entries WHERE source IS NOT NULL`).Scan(&stats.Sources)
	return stats, err
}

// TimelineStats adapts GetStats for the metrics collector.
func (d *Database) TimelineStats(ctx context.Context) (metrics.Stats, error) {
	s, err := d.GetStats(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		TotalEntries:    s.TotalEntries,
		EntriesBySchema: s.EntriesBySchema,
		Sources:         s.Sources,
	}, nil
}
