package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetMetadata retrieves a metadata value by key.
// Returns error if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Metadata keys for run timestamps.
const (
	MetaLastSync         = "last_sync"
	MetaLastPreviewBatch = "last_preview_batch"
)

// GetLastRun returns the timestamp stored under key.
// Returns zero time if never run.
func (d *Database) GetLastRun(ctx context.Context, key string) (time.Time, error) {
	value, err := d.GetMetadata(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, value)
}

// SetLastRun stores t under key. A zero time clears it.
func (d *Database) SetLastRun(ctx context.Context, key string, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, key, "")
	}
	return d.SetMetadata(ctx, key, t.UTC().Format(time.RFC3339))
}
