// Package notify announces committed backups on NATS.
//
// A Publisher implements timeline.Publisher. Every backup whose entries were
// replaced is published as a JSON message on a single subject (default
// "timeline.backup.synced"):
//
//	{"run_id":"...","source":"laptop","backup_date":"2024-01-02T03:00:00Z","entries":12}
//
// The connection retries on start and reconnects in the background, so a
// temporarily unavailable server never fails a sync. Publish errors are
// logged by the synchronizer and otherwise ignored.
package notify
