// Package indexer keeps the timeline in step with its backup sources while
// the server runs.
//
// An Indexer synchronizes all configured sources:
//   - at start-up, in the background
//   - periodically, on the configured interval
//   - when the watcher reports a new snapshot in a source
//   - on demand via TriggerSync (POST /api/sync)
//
// Only one sync runs at a time. Requests arriving while a sync is running are
// queued and merged into a single follow-up sync once it finishes. The server
// reports ready after the initial sync completed, whatever its outcome.
package indexer
