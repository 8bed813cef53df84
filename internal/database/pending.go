package database

import (
	"context"
	"time"
)

// MarkBackupPending records that (source, backupDate) failed to sync. The
// mark stays until ReplaceBackupEntries commits the pair.
func (d *Database) MarkBackupPending(ctx context.Context, source string, backupDate time.Time, reason string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_backup_pending", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO pending_backups (source, backup_date, error, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source, backup_date) DO UPDATE SET
			error = excluded.error,
			recorded_at = excluded.recorded_at
	`, source, FormatBackupDate(backupDate), reason, time.Now().Unix())
	return err
}

// PendingBackups returns the pending backup dates of source, oldest first.
func (d *Database) PendingBackups(ctx context.Context, source string) ([]time.Time, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("pending_backups", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT backup_date FROM pending_backups WHERE source = ? ORDER BY backup_date`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, err
		}
		var t time.Time
		if t, err = ParseBackupDate(s); err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	err = rows.Err()
	return dates, err
}
