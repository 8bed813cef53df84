package backup

import (
	"context"
	"time"
)

// Backup is one immutable, timestamped snapshot of a source.
type Backup interface {
	// Date is the snapshot timestamp. It never changes for a given backup.
	Date() time.Time
	// Root is the directory holding the snapshot's files.
	Root() string
	// ChangedFiles lists the absolute paths of files introduced or changed
	// relative to the previous backup of the same source. Calling it again
	// returns the same result.
	ChangedFiles(ctx context.Context) ([]string, error)
}

// Source is a named origin producing an ordered sequence of backups.
type Source interface {
	Key() string
	// Backups returns the source's backups, oldest first.
	Backups(ctx context.Context) ([]Backup, error)
}
