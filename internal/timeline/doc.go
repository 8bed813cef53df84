// Package timeline turns backup snapshots into timeline entries.
//
// For every source the [Synchronizer] looks up the watermark (the newest
// backup_date already stored for the source), selects the backups that still
// need processing, resolves each backup's eligible changed files and replaces
// the entry set of the (source, backup_date) pair in one store transaction.
// Re-running a sync over the same backups leaves the store unchanged.
//
// Failures are isolated per backup. By default the first failure stops the
// source and the remaining selected backups are reported as unprocessed; with
// ContinueOnError they are still attempted. A summary is logged for every
// source whatever the outcome.
package timeline
