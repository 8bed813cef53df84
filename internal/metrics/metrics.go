package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_db_transaction_duration_seconds",
			Help:    "Entry replacement transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backup_timeline_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Sync metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_sync_runs_total",
			Help: "Total number of source synchronizations by status",
		},
		[]string{"source", "status"},
	)

	SyncBackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_sync_backups_total",
			Help: "Backups handled per source by outcome",
		},
		[]string{"source", "outcome"}, // "processed", "skipped", "failed", "unprocessed"
	)

	SyncEntriesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_sync_entries_created_total",
			Help: "Total number of timeline entries created",
		},
		[]string{"source"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_sync_duration_seconds",
			Help:    "Duration of one source synchronization in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"source"},
	)

	SyncIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_sync_running",
			Help: "Whether a sync is currently running (1 = running, 0 = idle)",
		},
	)

	SyncLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_sync_last_run_timestamp",
			Help: "Unix timestamp of the last completed sync of all sources",
		},
	)

	SnapshotEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_snapshot_watcher_events_total",
			Help: "Total number of filesystem watcher events on source directories",
		},
		[]string{"event_type"},
	)
)

// Preview metrics
var (
	PreviewGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_preview_generations_total",
			Help: "Total number of preview generations",
		},
		[]string{"kind", "status"},
	)

	PreviewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_preview_generation_duration_seconds",
			Help:    "Preview generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	PreviewCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backup_timeline_preview_cache_hits_total",
			Help: "Total number of previews served from existing artifacts",
		},
	)

	PreviewCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backup_timeline_preview_cache_misses_total",
			Help: "Total number of previews that had to be generated",
		},
	)

	PreviewCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_preview_cache_size_bytes",
			Help: "Total size of the preview cache in bytes",
		},
	)
)

// Transcoder metrics
var (
	TranscoderProcessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_timeline_transcoder_processes_total",
			Help: "Total number of external transcoder processes",
		},
		[]string{"tool", "status"},
	)

	TranscoderProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_timeline_transcoder_process_duration_seconds",
			Help:    "External transcoder process duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tool"},
	)

	TranscoderProcessesInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_transcoder_processes_in_progress",
			Help: "Number of external transcoder processes currently running",
		},
	)
)

// Timeline contents
var (
	EntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backup_timeline_entries_total",
			Help: "Number of timeline entries by schema",
		},
		[]string{"schema"},
	)

	SourcesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_timeline_sources_total",
			Help: "Number of sources with at least one entry",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backup_timeline_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
