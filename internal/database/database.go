package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database is the SQLite-backed entry store.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the database file at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schema TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date_on_timeline INTEGER NOT NULL,
		extra_attributes TEXT NOT NULL DEFAULT '{}',
		source TEXT GENERATED ALWAYS AS (json_extract(extra_attributes, '$.source')) VIRTUAL,
		backup_date TEXT GENERATED ALWAYS AS (json_extract(extra_attributes, '$.backup_date')) VIRTUAL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source_backup ON entries(source, backup_date);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date_on_timeline);
	CREATE INDEX IF NOT EXISTS idx_entries_schema ON entries(schema);

	-- One row per source synchronization
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		unprocessed INTEGER NOT NULL DEFAULT 0,
		entries_created INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_source ON sync_runs(source, started_at);

	-- Backups whose last sync failed, selected again until committed
	CREATE TABLE IF NOT EXISTS pending_backups (
		source TEXT NOT NULL,
		backup_date TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (source, backup_date)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// batch is a write transaction with its start time for metrics.
type batch struct {
	tx    *sql.Tx
	start time.Time
}

// beginBatch starts a write transaction. The caller must call endBatch.
func (d *Database) beginBatch(ctx context.Context) (*batch, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &batch{tx: tx, start: time.Now()}, nil
}

// endBatch commits the transaction, or rolls it back when err is non-nil.
func (d *Database) endBatch(b *batch, err error) error {
	duration := time.Since(b.start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := b.tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return b.tx.Commit()
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection and file size metrics.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))

	for label, path := range map[string]string{
		"main": d.dbPath,
		"wal":  d.dbPath + "-wal",
		"shm":  d.dbPath + "-shm",
	} {
		if info, err := os.Stat(path); err == nil {
			metrics.DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
		}
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions of %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions of %s", path)
			}
		}
	}

	return nil
}
