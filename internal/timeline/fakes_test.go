package timeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/database"
	"backup-timeline/internal/inclusion"
)

// memStore is an in-memory EntryStore and RunJournal.
type memStore struct {
	mu       sync.Mutex
	sets     map[string]map[string][]database.Entry
	failOn   map[string]error // backup_date -> error from ReplaceBackupEntries
	pending  map[string]map[string]string
	replaces int
	runs     []database.SyncRun
}

func newMemStore() *memStore {
	return &memStore{
		sets:    make(map[string]map[string][]database.Entry),
		pending: make(map[string]map[string]string),
	}
}

func (m *memStore) PendingBackups(_ context.Context, source string) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dates []time.Time
	for date := range m.pending[source] {
		t, err := database.ParseBackupDate(date)
		if err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, nil
}

func (m *memStore) MarkBackupPending(_ context.Context, source string, backupDate time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending[source] == nil {
		m.pending[source] = make(map[string]string)
	}
	m.pending[source][database.FormatBackupDate(backupDate)] = reason
	return nil
}

// pendingDates returns the pending backup dates of source, sorted.
func (m *memStore) pendingDates(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dates []string
	for date := range m.pending[source] {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

func (m *memStore) LatestBackupDate(_ context.Context, source string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := ""
	for date, entries := range m.sets[source] {
		if len(entries) > 0 && date > latest {
			latest = date
		}
	}
	if latest == "" {
		return time.Time{}, false, nil
	}
	t, err := database.ParseBackupDate(latest)
	return t, err == nil, err
}

func (m *memStore) ReplaceBackupEntries(_ context.Context, source string, backupDate time.Time, entries []database.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	date := database.FormatBackupDate(backupDate)
	if err := m.failOn[date]; err != nil {
		return 0, err
	}
	m.replaces++
	if m.sets[source] == nil {
		m.sets[source] = make(map[string][]database.Entry)
	}
	stored := make([]database.Entry, len(entries))
	for i, e := range entries {
		e.Attributes.Source = source
		e.Attributes.BackupDate = date
		stored[i] = e
	}
	m.sets[source][date] = stored
	delete(m.pending[source], date)
	return len(stored), nil
}

func (m *memStore) RecordSyncRun(_ context.Context, run database.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// paths returns the stored entry paths of source, sorted.
func (m *memStore) paths(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for _, entries := range m.sets[source] {
		for _, e := range entries {
			paths = append(paths, e.Attributes.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (m *memStore) count(source string) int {
	return len(m.paths(source))
}

type fakeBackup struct {
	date  time.Time
	root  string
	files []string
	err   error
	calls int
}

func (b *fakeBackup) Date() time.Time { return b.date }
func (b *fakeBackup) Root() string    { return b.root }
func (b *fakeBackup) ChangedFiles(context.Context) ([]string, error) {
	b.calls++
	return b.files, b.err
}

type fakeSource struct {
	key     string
	backups []backup.Backup
	err     error
}

func (s *fakeSource) Key() string { return s.key }
func (s *fakeSource) Backups(context.Context) ([]backup.Backup, error) {
	return s.backups, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []BackupSynced
}

func (p *recordingPublisher) PublishBackupSynced(_ context.Context, e BackupSynced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

var baseDate = time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)

// makeBackup creates a snapshot directory dated baseDate+offset days that
// includes everything and holds the given files. All files count as changed.
func makeBackup(t *testing.T, dir string, day int, files ...string) *fakeBackup {
	t.Helper()

	date := baseDate.AddDate(0, 0, day)
	root := filepath.Join(dir, database.FormatBackupDate(date))
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, inclusion.MarkerFileName), []byte("*\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := &fakeBackup{date: date, root: root}
	for _, name := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := date.Add(-time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		b.files = append(b.files, path)
	}
	return b
}

func backups(bs ...*fakeBackup) []backup.Backup {
	out := make([]backup.Backup, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

var errBoom = errors.New("boom")
