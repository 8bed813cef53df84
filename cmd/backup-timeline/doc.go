// Package main provides the entry point for backup-timeline.
//
// backup-timeline reads the snapshots of one or more backup sources and
// records, per backup, the files that changed and belong on a timeline:
// files matched by a .timelineinclude marker whose media type is an image,
// video, audio file or document. Each file becomes one entry dated by its
// modification time. It also renders previews of those files.
//
// # Commands
//
//   - sync: process new backups of every source, or of the named ones
//   - serve: run the sync daemon with health, version and metrics endpoints
//   - preview image|pdf|video: render one preview
//   - preview batch: render cached previews of stored entries
//   - preview clear-cache: remove cached previews
//   - entries list, runs list: inspect the store and the sync journal
//   - version: print build information
//
// # Sync Lifecycle
//
// For each source:
//
//  1. List the snapshot directories, oldest first
//  2. Skip backups not newer than the newest backup_date already stored
//  3. Resolve each remaining backup's changed, included, eligible files
//  4. Replace the backup's entries in one transaction
//  5. Publish a notification per committed backup (when NATS is configured)
//  6. Record the run in the sync journal
//
// Sources are independent: a failure in one never affects another.
//
// # Configuration
//
// Settings come from an optional YAML file (--config, or backup-timeline.yaml
// in ./, ~/.config/backup-timeline or /etc/backup-timeline) and from
// TIMELINE_* environment variables, e.g. TIMELINE_DATABASE_DRIVER=postgres.
// LOG_LEVEL and DEBUG set the log level; --log-level overrides both.
//
// # Graceful Shutdown
//
// serve handles SIGINT and SIGTERM:
//
//  1. Stop the snapshot watcher
//  2. Stop the sync daemon, cancelling a running sync
//  3. Shut down the HTTP server (30s timeout)
//  4. Drain the NATS connection
//  5. Close the store
//
// # Build Requirements
//
// CGO is required for SQLite and libvips:
//
//	go build -o backup-timeline ./cmd/backup-timeline
//
// The magick image engine needs ImageMagick's convert, video previews need
// ffmpeg, and video durations fall back to ffprobe for non-MP4 containers.
//
// # Related Packages
//
//   - [backup-timeline/internal/timeline]: change sets, watermark and synchronizer
//   - [backup-timeline/internal/backup]: snapshot directory sources
//   - [backup-timeline/internal/preview]: preview generation and cache
//   - [backup-timeline/internal/database]: SQLite entry store
//   - [backup-timeline/internal/pgstore]: PostgreSQL entry store
//   - [backup-timeline/internal/indexer]: sync daemon
//   - [backup-timeline/internal/startup]: configuration and initialization
package main
