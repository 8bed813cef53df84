// Package inclusion restricts a backup's changed files to the ones declared
// for the timeline.
//
// Patterns are declared in plain text files named .timelineinclude that may
// appear at any depth of a backup tree. Each non-blank line is one glob,
// resolved relative to the backup root:
//
//	photos/**/*.jpg
//	videos/*.mp4
//
// Matching is done on whole path strings rather than path segments, so '*'
// and '**' both match across directory levels. A backup without any marker
// file contributes no files at all.
package inclusion
