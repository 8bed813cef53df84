package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/workers"

	"github.com/zeebo/blake3"
)

// DirLayouts are the accepted snapshot directory name formats. Names are
// interpreted as UTC.
var DirLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T150405Z",
	"20060102T150405Z",
	"2006-01-02_15-04-05",
}

// ErrDuplicateSnapshot is returned when two snapshot directories of a source
// name the same second.
var ErrDuplicateSnapshot = errors.New("duplicate snapshot date")

// SourceConfig describes a directory of snapshots.
type SourceConfig struct {
	Key  string `mapstructure:"key"`
	Path string `mapstructure:"path"`
	// FilesSubdir is an optional directory inside each snapshot that holds
	// the backed-up files.
	FilesSubdir string `mapstructure:"files_subdir"`
	// VerifyContent compares file digests when size and mtime are unchanged
	// but the file is not a hard link of its predecessor.
	VerifyContent bool `mapstructure:"verify_content"`
}

// SnapshotSource is a Source backed by a directory whose children are
// timestamp-named snapshots, as produced by rsync --link-dest rotations.
type SnapshotSource struct {
	cfg     SourceConfig
	workers int
}

// NewSnapshotSource creates a snapshot source.
func NewSnapshotSource(cfg SourceConfig) *SnapshotSource {
	return &SnapshotSource{cfg: cfg, workers: workers.ForIO(16)}
}

// Key returns the source key.
func (s *SnapshotSource) Key() string {
	return s.cfg.Key
}

// Path returns the directory holding the snapshots.
func (s *SnapshotSource) Path() string {
	return s.cfg.Path
}

// Backups lists the snapshots under the source directory, oldest first.
// Entries whose names do not parse as a timestamp are ignored. Two snapshots
// whose names parse to the same second fail with ErrDuplicateSnapshot, as
// they would share one entry set.
func (s *SnapshotSource) Backups(ctx context.Context) ([]Backup, error) {
	entries, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %q: %w", s.cfg.Key, err)
	}

	var snapshots []*Snapshot
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		date, ok := ParseSnapshotName(e.Name())
		if !ok {
			logging.Debug("Ignoring %s in source %q: not a snapshot name", e.Name(), s.cfg.Key)
			continue
		}
		snapshots = append(snapshots, &Snapshot{
			source: s,
			name:   e.Name(),
			date:   date,
			dir:    filepath.Join(s.cfg.Path, e.Name()),
		})
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].date.Before(snapshots[j].date)
	})

	backups := make([]Backup, len(snapshots))
	for i, snap := range snapshots {
		if i > 0 {
			prev := snapshots[i-1]
			if prev.date.Equal(snap.date) {
				return nil, fmt.Errorf("%w in source %q: %s and %s", ErrDuplicateSnapshot, s.cfg.Key, prev.name, snap.name)
			}
			snap.prev = prev
		}
		backups[i] = snap
	}
	return backups, nil
}

// ParseSnapshotName parses a snapshot directory name with any of DirLayouts.
func ParseSnapshotName(name string) (time.Time, bool) {
	for _, layout := range DirLayouts {
		if t, err := time.ParseInLocation(layout, name, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Snapshot is a single backup of a SnapshotSource.
type Snapshot struct {
	source *SnapshotSource
	name   string
	date   time.Time
	dir    string
	prev   *Snapshot
}

// Name returns the snapshot directory name.
func (s *Snapshot) Name() string {
	return s.name
}

// Date returns the snapshot timestamp.
func (s *Snapshot) Date() time.Time {
	return s.date
}

// Root returns the directory holding the snapshot's files.
func (s *Snapshot) Root() string {
	if s.source.cfg.FilesSubdir != "" {
		return filepath.Join(s.dir, s.source.cfg.FilesSubdir)
	}
	return s.dir
}

// ChangedFiles returns the regular files that are new in this snapshot or
// differ from the previous one, sorted. Every file of the first snapshot
// counts as changed.
func (s *Snapshot) ChangedFiles(ctx context.Context) ([]string, error) {
	root := s.Root()
	rels, err := listFiles(ctx, root)
	if err != nil {
		return nil, err
	}

	if s.prev == nil {
		return absPaths(root, rels), nil
	}

	prevRoot := s.prev.Root()
	changed, err := workers.Map(ctx, s.source.workers, rels, func(_ context.Context, rel string) (bool, error) {
		return s.changedSince(prevRoot, rel)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compare snapshot %s with %s: %w", s.name, s.prev.name, err)
	}

	var result []string
	for i, rel := range rels {
		if changed[i] {
			result = append(result, filepath.Join(root, rel))
		}
	}
	return result, nil
}

func (s *Snapshot) changedSince(prevRoot, rel string) (bool, error) {
	current := filepath.Join(s.Root(), rel)
	previous := filepath.Join(prevRoot, rel)

	cur, err := os.Lstat(current)
	if err != nil {
		return false, err
	}
	old, err := os.Lstat(previous)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// rsync --link-dest hard-links unchanged files to the previous snapshot
	if os.SameFile(cur, old) {
		return false, nil
	}
	if cur.Size() != old.Size() || !cur.ModTime().Equal(old.ModTime()) {
		return true, nil
	}
	if !s.source.cfg.VerifyContent {
		return false, nil
	}

	a, err := fileDigest(current)
	if err != nil {
		return false, err
	}
	b, err := fileDigest(previous)
	if err != nil {
		return false, err
	}
	return a != b, nil
}

func listFiles(ctx context.Context, root string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(rels)
	return rels, nil
}

func absPaths(root string, rels []string) []string {
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(root, rel)
	}
	return paths
}

func fileDigest(path string) ([32]byte, error) {
	var sum [32]byte

	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
