// Package database provides the SQLite entry store.
//
// It holds:
//   - Timeline entries, one set per (source, backup_date) pair
//   - The sync run journal
//   - Small key/value metadata such as last run timestamps
//
// source and backup_date are generated columns over the entry's
// extra_attributes JSON, so pair lookups and replacement stay indexed. The
// database uses WAL mode and initializes its schema on open.
package database
