// Package watcher detects new snapshots in source directories.
//
// Each source directory is watched non-recursively with fsnotify. When a
// child directory whose name parses as a snapshot timestamp is created, the
// source is reported once the directory has been quiet for the debounce
// period, so a snapshot still being copied in triggers a single sync.
package watcher
