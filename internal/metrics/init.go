package metrics

// Schemas lists every schema an entry can carry.
var Schemas = []string{"file", "file.image", "file.video", "file.audio", "file.text", "file.document.pdf"}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"latest_backup_date", "replace_backup_entries", "delete_backup_entries",
		"list_entries", "count_entries", "get_entry", "get_stats", "record_sync_run", "list_sync_runs"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, kind := range []string{"image", "pdf", "video"} {
		for _, status := range []string{"success", "error", "exists"} {
			PreviewGenerationsTotal.WithLabelValues(kind, status)
		}
		PreviewGenerationDuration.WithLabelValues(kind)
	}

	for _, tool := range []string{"convert", "ffmpeg", "ffprobe"} {
		TranscoderProcessesTotal.WithLabelValues(tool, "success")
		TranscoderProcessesTotal.WithLabelValues(tool, "error")
		TranscoderProcessDuration.WithLabelValues(tool)
	}

	for _, schema := range Schemas {
		EntriesTotal.WithLabelValues(schema)
	}
}
