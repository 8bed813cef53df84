// Package backup defines the backup collaborator used by the timeline and
// a filesystem implementation of it.
//
// A Source is an ordered sequence of immutable Backups. Each Backup knows its
// timestamp, its files root, and which files it introduced or changed
// relative to its predecessor.
//
// SnapshotSource reads a directory of timestamp-named snapshot directories:
//
//	/backups/laptop/
//	    2020-10-19T03:00:00Z/
//	    2020-10-20T03:00:00Z/
//	    2020-10-21T03:00:00Z/
//
// A file is unchanged when it is a hard link of the same path in the previous
// snapshot (rsync --link-dest), or when size and modification time match.
// With VerifyContent, copies with matching size and time are additionally
// compared by BLAKE3 digest.
package backup
