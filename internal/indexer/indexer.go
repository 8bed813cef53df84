package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/database"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/timeline"
)

var (
	// ErrSyncInProgress is returned by Sync while another sync is running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrUnknownSource is returned for a source key that is not configured.
	ErrUnknownSource = errors.New("unknown source")
)

// Syncer synchronizes sources. *timeline.Synchronizer implements it.
type Syncer interface {
	SyncAll(ctx context.Context, sources []backup.Source) []*timeline.SourceReport
}

// RunStore remembers when the last sync finished.
type RunStore interface {
	SetLastRun(ctx context.Context, key string, t time.Time) error
}

// Indexer runs background syncs.
type Indexer struct {
	syncer   Syncer
	sources  []backup.Source
	interval time.Duration
	runStore RunStore

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                  sync.Mutex
	isSyncing           bool
	syncStartedAt       time.Time
	lastSyncTime        time.Time
	initialSyncComplete bool
	initialSyncError    error
	startTime           time.Time
	lastReports         map[string]SourceStatus
	pendingAll          bool
	pending             map[string]bool

	// Callback when a sync completes
	onSyncComplete func()
}

// SourceStatus is the outcome of the latest sync of one source.
type SourceStatus struct {
	Source         string    `json:"source"`
	RunID          string    `json:"runId"`
	Status         string    `json:"status"`
	FinishedAt     time.Time `json:"finishedAt"`
	Processed      int       `json:"processed"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	Unprocessed    int       `json:"unprocessed"`
	EntriesCreated int       `json:"entriesCreated"`
	Error          string    `json:"error,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready            bool           `json:"ready"`
	Syncing          bool           `json:"syncing"`
	SyncStartedAt    time.Time      `json:"syncStartedAt,omitempty"`
	StartTime        time.Time      `json:"startTime"`
	Uptime           string         `json:"uptime"`
	LastSynced       time.Time      `json:"lastSynced,omitempty"`
	InitialSyncError string         `json:"initialSyncError,omitempty"`
	Sources          []SourceStatus `json:"sources"`
}

// New creates an Indexer. An interval of zero disables periodic syncs.
func New(syncer Syncer, sources []backup.Source, interval time.Duration) *Indexer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Indexer{
		syncer:      syncer,
		sources:     sources,
		interval:    interval,
		ctx:         ctx,
		cancel:      cancel,
		startTime:   time.Now(),
		lastReports: make(map[string]SourceStatus),
		pending:     make(map[string]bool),
	}
}

// SetRunStore records the completion time of every sync under
// database.MetaLastSync.
func (idx *Indexer) SetRunStore(store RunStore) {
	idx.runStore = store
}

// SetOnSyncComplete sets a callback invoked after every sync.
func (idx *Indexer) SetOnSyncComplete(callback func()) {
	idx.onSyncComplete = callback
}

// Start begins the initial sync and the periodic schedule.
func (idx *Indexer) Start() error {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		logging.Info("Starting initial sync of %d sources in background...", len(idx.sources))
		err := idx.Sync(idx.ctx)
		if errors.Is(err, ErrSyncInProgress) {
			err = nil
		}
		idx.mu.Lock()
		idx.initialSyncComplete = true
		if err != nil {
			idx.initialSyncError = err
		}
		idx.mu.Unlock()
		if err != nil {
			logging.Error("Initial sync error: %v", err)
		}
	}()

	if idx.interval > 0 {
		idx.wg.Add(1)
		go idx.periodicSync()
	}
	return nil
}

// Stop cancels running syncs and waits for background work to finish.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		idx.cancel()
		idx.wg.Wait()
	})
}

func (idx *Indexer) periodicSync() {
	defer idx.wg.Done()

	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic sync triggered")
			if err := idx.Sync(idx.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				logging.Error("periodic sync failed: %v", err)
			}
		case <-idx.ctx.Done():
			return
		}
	}
}

// HasSource reports whether key names a configured source.
func (idx *Indexer) HasSource(key string) bool {
	return slices.ContainsFunc(idx.sources, func(s backup.Source) bool { return s.Key() == key })
}

// selectSources returns the sources named by keys, or all sources when keys
// is empty.
func (idx *Indexer) selectSources(keys []string) ([]backup.Source, error) {
	if len(keys) == 0 {
		return idx.sources, nil
	}
	var selected []backup.Source
	for _, src := range idx.sources {
		if slices.Contains(keys, src.Key()) {
			selected = append(selected, src)
		}
	}
	for _, key := range keys {
		if !idx.HasSource(key) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, key)
		}
	}
	return selected, nil
}

// Sync synchronizes the sources named by keys, or all sources, and blocks
// until done. Only source-level failures are returned; backup failures are
// visible in the health status.
func (idx *Indexer) Sync(ctx context.Context, keys ...string) error {
	sources, err := idx.selectSources(keys)
	if err != nil {
		return err
	}
	if !idx.tryStartSync() {
		logging.Info("Sync already in progress, skipping...")
		return ErrSyncInProgress
	}
	return idx.run(ctx, sources)
}

// run syncs sources. The caller has marked the sync as started.
func (idx *Indexer) run(ctx context.Context, sources []backup.Source) error {
	defer idx.finishSync()

	reports := idx.syncer.SyncAll(ctx, sources)

	var errs []error
	idx.mu.Lock()
	for _, r := range reports {
		idx.lastReports[r.Source] = statusOf(r)
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Source, r.Err))
		}
	}
	idx.lastSyncTime = time.Now()
	finished := idx.lastSyncTime
	idx.mu.Unlock()

	if idx.runStore != nil {
		if err := idx.runStore.SetLastRun(context.WithoutCancel(ctx), database.MetaLastSync, finished); err != nil {
			logging.Warn("Failed to record last sync time: %v", err)
		}
	}
	if idx.onSyncComplete != nil {
		idx.onSyncComplete()
	}
	return errors.Join(errs...)
}

// TriggerSync starts a sync of the sources named by keys, or of all sources,
// in the background. While a sync is running the request is queued and served
// by a follow-up sync.
func (idx *Indexer) TriggerSync(keys ...string) error {
	sources, err := idx.selectSources(keys)
	if err != nil {
		return err
	}
	if err := idx.ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	if idx.isSyncing {
		idx.queue(keys)
		idx.mu.Unlock()
		logging.Debug("Sync in progress, queued request for %v", keys)
		return nil
	}
	idx.isSyncing = true
	idx.syncStartedAt = time.Now()
	idx.mu.Unlock()

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		if err := idx.run(idx.ctx, sources); err != nil {
			logging.Error("triggered sync failed: %v", err)
		}
	}()
	return nil
}

// SourceChanged is the watcher callback: it queues a sync of one source.
func (idx *Indexer) SourceChanged(key string) {
	if err := idx.TriggerSync(key); err != nil {
		logging.Warn("Ignoring change in %q: %v", key, err)
	}
}

// queue records a request made while syncing. Callers hold mu.
func (idx *Indexer) queue(keys []string) {
	if len(keys) == 0 {
		idx.pendingAll = true
		return
	}
	for _, k := range keys {
		idx.pending[k] = true
	}
}

// tryStartSync attempts to start syncing, returns false if already in progress.
func (idx *Indexer) tryStartSync() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.isSyncing {
		return false
	}
	idx.isSyncing = true
	idx.syncStartedAt = time.Now()
	return true
}

// finishSync marks the sync as complete and starts a follow-up sync for
// requests queued meanwhile.
func (idx *Indexer) finishSync() {
	idx.mu.Lock()
	idx.isSyncing = false
	idx.syncStartedAt = time.Time{}

	var keys []string
	queued := idx.pendingAll || len(idx.pending) > 0
	if !idx.pendingAll {
		for k := range idx.pending {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}
	idx.pendingAll = false
	clear(idx.pending)
	idx.mu.Unlock()

	if queued && idx.ctx.Err() == nil {
		if err := idx.TriggerSync(keys...); err != nil {
			logging.Error("queued sync failed: %v", err)
		}
	}
}

func statusOf(r *timeline.SourceReport) SourceStatus {
	s := SourceStatus{
		Source:         r.Source,
		RunID:          r.RunID,
		Status:         string(r.Status()),
		FinishedAt:     r.FinishedAt,
		Processed:      r.Processed,
		Skipped:        r.Skipped,
		Failed:         r.Failed(),
		Unprocessed:    r.Unprocessed,
		EntriesCreated: r.EntriesCreated,
	}
	if err := r.Error(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// IsReady returns true once the initial sync has finished.
func (idx *Indexer) IsReady() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.initialSyncComplete
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	status := HealthStatus{
		Ready:         idx.initialSyncComplete,
		Syncing:       idx.isSyncing,
		SyncStartedAt: idx.syncStartedAt,
		StartTime:     idx.startTime,
		Uptime:        time.Since(idx.startTime).Round(time.Second).String(),
		LastSynced:    idx.lastSyncTime,
		Sources:       make([]SourceStatus, 0, len(idx.sources)),
	}
	if idx.initialSyncError != nil {
		status.InitialSyncError = idx.initialSyncError.Error()
	}
	for _, src := range idx.sources {
		if s, ok := idx.lastReports[src.Key()]; ok {
			status.Sources = append(status.Sources, s)
		} else {
			status.Sources = append(status.Sources, SourceStatus{Source: src.Key(), Status: "pending"})
		}
	}
	return status
}
