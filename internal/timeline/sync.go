package timeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/database"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/mediatypes"
	"backup-timeline/internal/metrics"
)

// EntryStore persists entry sets per (source, backup_date) pair.
type EntryStore interface {
	WatermarkStore
	// ReplaceBackupEntries atomically replaces every entry of the pair with
	// entries and returns the number created.
	// It also clears the pair's pending mark.
	ReplaceBackupEntries(ctx context.Context, source string, backupDate time.Time, entries []database.Entry) (int, error)
	// MarkBackupPending records that the pair failed to sync, so later
	// syncs select it until it is committed.
	MarkBackupPending(ctx context.Context, source string, backupDate time.Time, reason string) error
}

// RunJournal records sync runs.
type RunJournal interface {
	RecordSyncRun(ctx context.Context, run database.SyncRun) error
}

// BackupSynced is announced after a backup's entries are committed.
type BackupSynced struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	BackupDate string `json:"backup_date"`
	Entries    int    `json:"entries"`
}

// Publisher announces committed backups.
type Publisher interface {
	PublishBackupSynced(ctx context.Context, event BackupSynced) error
}

// Options tunes a Synchronizer.
type Options struct {
	Mode Mode
	// ContinueOnError keeps processing a source's later backups after one
	// fails. When false they are reported as unprocessed.
	ContinueOnError bool
	// Parallel bounds how many sources SyncAll runs at once. Values below 1
	// mean one.
	Parallel int
}

// Option configures optional collaborators.
type Option func(*Synchronizer)

// WithJournal records a SyncRun for every source.
func WithJournal(j RunJournal) Option {
	return func(s *Synchronizer) { s.journal = j }
}

// WithPublisher announces every committed backup.
func WithPublisher(p Publisher) Option {
	return func(s *Synchronizer) { s.publisher = p }
}

// WithResolver replaces the default change set resolver.
func WithResolver(r Resolver) Option {
	return func(s *Synchronizer) { s.resolver = r }
}

// Synchronizer replays backups into the entry store.
type Synchronizer struct {
	store     EntryStore
	journal   RunJournal
	publisher Publisher
	resolver  Resolver
	opts      Options
	log       *zap.Logger
}

// NewSynchronizer creates a Synchronizer writing to store.
func NewSynchronizer(store EntryStore, opts Options, options ...Option) *Synchronizer {
	s := &Synchronizer{
		store: store,
		opts:  opts,
		log:   logging.Named("timeline"),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// BackupFailure is a backup that could not be synchronized.
type BackupFailure struct {
	Date time.Time
	Err  error
}

// SourceReport summarizes the synchronization of one source.
type SourceReport struct {
	RunID        string
	Source       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Watermark    time.Time
	HasWatermark bool

	Processed      int
	Skipped        int
	Unprocessed    int
	EntriesCreated int
	Failures       []BackupFailure

	// Err is set when the source as a whole could not be synchronized, such
	// as when its backups could not be listed.
	Err error
}

// Failed returns the number of backups that failed.
func (r *SourceReport) Failed() int {
	return len(r.Failures)
}

// Status classifies the run: success without failures, partial when some
// backups were committed despite failures, failed otherwise.
func (r *SourceReport) Status() database.SyncStatus {
	switch {
	case r.Err != nil:
		return database.SyncFailed
	case len(r.Failures) == 0:
		return database.SyncSuccess
	case r.Processed > 0:
		return database.SyncPartial
	default:
		return database.SyncFailed
	}
}

// Error joins the source and backup errors, or returns nil.
func (r *SourceReport) Error() error {
	errs := make([]error, 0, len(r.Failures)+1)
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("backup %s: %w", database.FormatBackupDate(f.Date), f.Err))
	}
	return errors.Join(errs...)
}

// Run converts the report into a journal row.
func (r *SourceReport) Run() database.SyncRun {
	run := database.SyncRun{
		ID:             r.RunID,
		Source:         r.Source,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Status:         r.Status(),
		Processed:      r.Processed,
		Skipped:        r.Skipped,
		Failed:         r.Failed(),
		Unprocessed:    r.Unprocessed,
		EntriesCreated: r.EntriesCreated,
	}
	if err := r.Error(); err != nil {
		run.Error = err.Error()
	}
	return run
}

// SyncSource synchronizes one source. Problems are reported in the returned
// report, never as a panic or a silently skipped backup.
func (s *Synchronizer) SyncSource(ctx context.Context, src backup.Source) *SourceReport {
	report := &SourceReport{
		RunID:     uuid.NewString(),
		Source:    src.Key(),
		StartedAt: time.Now().UTC(),
	}
	log := s.log.With(zap.String("source", report.Source), zap.String("run_id", report.RunID))

	s.syncSource(ctx, src, report, log)

	report.FinishedAt = time.Now().UTC()
	s.finish(ctx, report)
	return report
}

func (s *Synchronizer) syncSource(ctx context.Context, src backup.Source, report *SourceReport, log *zap.Logger) {
	backups, err := src.Backups(ctx)
	if err != nil {
		report.Err = err
		return
	}
	if len(backups) == 0 {
		logging.Warn("No backups found for source %q", report.Source)
		return
	}

	sel, err := Select(ctx, s.store, report.Source, backups, s.opts.Mode)
	if err != nil {
		report.Err = err
		return
	}
	report.Watermark, report.HasWatermark = sel.Watermark, sel.HasWatermark
	report.Skipped = len(sel.Skipped)

	if sel.HasWatermark {
		log.Debug("watermark", zap.Time("latest_backup_date", sel.Watermark),
			zap.Int("selected", len(sel.Selected)), zap.Int("skipped", len(sel.Skipped)))
	}
	if sel.Retried > 0 {
		logging.Info("%s: retrying %d previously failed backups", report.Source, sel.Retried)
	}

	done := 0
	for cs, err := range s.resolver.ChangeSets(ctx, sel.Selected) {
		done++
		date := cs.Backup.Date()

		if err == nil {
			err = s.commit(ctx, report, cs)
		}
		if err != nil {
			log.Error("backup failed", zap.Time("backup_date", date), zap.Error(err))
			report.Failures = append(report.Failures, BackupFailure{Date: date, Err: err})
			s.markPending(ctx, report.Source, date, err)
			if !s.opts.ContinueOnError || ctx.Err() != nil {
				break
			}
		}
	}
	report.Unprocessed = len(sel.Selected) - done
}

// markPending keeps a failed backup selectable after later backups move the
// watermark past it.
func (s *Synchronizer) markPending(ctx context.Context, source string, date time.Time, cause error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.MarkBackupPending(mctx, source, date, cause.Error()); err != nil {
		logging.Error("Failed to mark backup %s of %s for retry: %v", database.FormatBackupDate(date), source, err)
	}
}

// commit builds and stores the entries of one change set.
func (s *Synchronizer) commit(ctx context.Context, report *SourceReport, cs ChangeSet) error {
	date := cs.Backup.Date()

	entries, err := BuildEntries(report.Source, date, cs.Files)
	if err != nil {
		return err
	}

	created, err := s.store.ReplaceBackupEntries(ctx, report.Source, date, entries)
	if err != nil {
		return fmt.Errorf("replacing entries: %w", err)
	}

	report.Processed++
	report.EntriesCreated += created
	s.log.Info("backup processed",
		zap.String("source", report.Source),
		zap.Time("backup_date", date),
		zap.Int("entries", created))

	if s.publisher != nil {
		event := BackupSynced{
			RunID:      report.RunID,
			Source:     report.Source,
			BackupDate: database.FormatBackupDate(date),
			Entries:    created,
		}
		if err := s.publisher.PublishBackupSynced(ctx, event); err != nil {
			logging.Warn("Failed to publish sync of %s %s: %v", report.Source, event.BackupDate, err)
		}
	}
	return nil
}

// BuildEntries creates one entry per file: schema from the media type, the
// base name as title, the modification time as timeline date and the
// symlink-resolved absolute path as attribute.
func BuildEntries(source string, backupDate time.Time, files []string) ([]database.Entry, error) {
	date := database.FormatBackupDate(backupDate)
	entries := make([]database.Entry, 0, len(files))

	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", path, err)
		}
		resolved, err = filepath.Abs(resolved)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", path, err)
		}

		entries = append(entries, database.Entry{
			Schema:         mediatypes.Schema(path),
			Title:          filepath.Base(path),
			DateOnTimeline: info.ModTime().UTC(),
			Attributes: database.Attributes{
				Path:       resolved,
				Source:     source,
				BackupDate: date,
			},
		})
	}
	return entries, nil
}

func (s *Synchronizer) finish(ctx context.Context, report *SourceReport) {
	status := report.Status()

	logging.Info("%s: %d backups processed, %d skipped, %d failed, %d unprocessed. %d entries created.",
		report.Source, report.Processed, report.Skipped, report.Failed(), report.Unprocessed, report.EntriesCreated)
	if err := report.Error(); err != nil {
		logging.Error("%s: sync %s: %v", report.Source, status, err)
	}

	metrics.SyncRunsTotal.WithLabelValues(report.Source, string(status)).Inc()
	metrics.SyncBackupsTotal.WithLabelValues(report.Source, "processed").Add(float64(report.Processed))
	metrics.SyncBackupsTotal.WithLabelValues(report.Source, "skipped").Add(float64(report.Skipped))
	metrics.SyncBackupsTotal.WithLabelValues(report.Source, "failed").Add(float64(report.Failed()))
	metrics.SyncBackupsTotal.WithLabelValues(report.Source, "unprocessed").Add(float64(report.Unprocessed))
	metrics.SyncEntriesCreated.WithLabelValues(report.Source).Add(float64(report.EntriesCreated))
	metrics.SyncDuration.WithLabelValues(report.Source).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if s.journal != nil {
		// The journal outlives a canceled sync.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.journal.RecordSyncRun(jctx, report.Run()); err != nil {
			logging.Warn("Failed to record sync run %s: %v", report.RunID, err)
		}
	}
}

// SyncAll synchronizes sources, up to Options.Parallel at a time, and
// returns their reports in the order given.
func (s *Synchronizer) SyncAll(ctx context.Context, sources []backup.Source) []*SourceReport {
	start := time.Now()
	metrics.SyncIsRunning.Set(1)
	defer metrics.SyncIsRunning.Set(0)

	reports := make([]*SourceReport, len(sources))

	var g errgroup.Group
	g.SetLimit(max(s.opts.Parallel, 1))

	var mu sync.Mutex
	var failed int
	for i, src := range sources {
		g.Go(func() error {
			reports[i] = s.SyncSource(ctx, src)
			if reports[i].Status() != database.SyncSuccess {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.SyncLastRunTimestamp.SetToCurrentTime()
	logging.Info("Synchronized %d sources in %v (%d with failures)", len(sources), time.Since(start).Round(time.Millisecond), failed)
	return reports
}
