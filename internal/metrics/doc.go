// Package metrics provides Prometheus instrumentation for backup-timeline.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "backup_timeline_".
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests of the ops server
//   - Database: query counts and durations, replacement transaction durations,
//     open connections and SQLite file sizes
//   - Sync: runs by status, backups by outcome, entries created, duration
//   - Preview: generations by kind and status, durations, cache hits and size
//   - Transcoder: external process counts, durations and in-flight processes
//   - Timeline: entries by schema and number of sources, fed by [Collector]
//
// # Collector
//
// [Collector] periodically reads [Stats] from a [StatsProvider] and sets the
// timeline gauges. If the provider also implements [DBMetricsUpdater] its
// database gauges are refreshed on the same tick:
//
//	collector := metrics.NewCollector(provider, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Entries created per hour by source:
//
//	sum(increase(backup_timeline_sync_entries_created_total[1h])) by (source)
//
// Failed backups:
//
//	sum(rate(backup_timeline_sync_backups_total{outcome="failed"}[1h])) by (source)
//
// P95 preview generation time by kind:
//
//	histogram_quantile(0.95, sum(rate(backup_timeline_preview_generation_duration_seconds_bucket[5m])) by (le, kind))
package metrics
