package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/database"
	"backup-timeline/internal/handlers"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
	"backup-timeline/internal/notify"
	"backup-timeline/internal/pgstore"
	"backup-timeline/internal/startup"
	"backup-timeline/internal/timeline"
)

// store is the entry store as used by the commands. *database.Database and
// *pgstore.Store implement it.
type store interface {
	timeline.EntryStore
	timeline.RunJournal
	handlers.Store
	metrics.StatsProvider
	ListEntries(ctx context.Context, filter database.EntryFilter) ([]database.Entry, error)
	CountEntries(ctx context.Context, filter database.EntryFilter) (int, error)
	Close() error
}

// lastRunStore is implemented by stores that keep run timestamps.
type lastRunStore interface {
	SetLastRun(ctx context.Context, key string, t time.Time) error
}

func openStore(ctx context.Context, cfg *startup.Config) (store, error) {
	start := time.Now()
	var (
		st  store
		err error
	)
	switch cfg.Database.Driver {
	case startup.DriverPostgres:
		st, err = pgstore.New(ctx, cfg.Database.URL)
	default:
		st, err = database.New(ctx, cfg.Database.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	startup.LogDatabaseInit(cfg.Database.Driver, time.Since(start))
	return st, nil
}

// markRun stamps key with now when the store supports it.
func markRun(ctx context.Context, st store, key string) {
	lr, ok := st.(lastRunStore)
	if !ok {
		return
	}
	if err := lr.SetLastRun(ctx, key, time.Now()); err != nil {
		logging.Warn("Failed to record %s: %v", key, err)
	}
}

// selectSources returns the configured sources named by keys, or all of them
// when keys is empty.
func selectSources(cfg *startup.Config, keys []string) ([]backup.Source, error) {
	byKey := make(map[string]backup.SourceConfig, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		byKey[sc.Key] = sc
	}

	if len(keys) == 0 {
		keys = cfg.SourceKeys()
	}
	if len(keys) == 0 {
		return nil, errors.New("no sources configured")
	}

	sources := make([]backup.Source, 0, len(keys))
	for _, k := range keys {
		sc, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", k)
		}
		sources = append(sources, backup.NewSnapshotSource(sc))
	}
	return sources, nil
}

// connectPublisher returns nil when notifications are not configured. A
// connection failure is logged and notifications are disabled.
func connectPublisher(cfg *startup.Config) *notify.Publisher {
	if cfg.NATS.URL == "" {
		return nil
	}
	pub, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject)
	if err != nil {
		logging.Warn("NATS notifications disabled: %v", err)
		return nil
	}
	return pub
}

func newSynchronizer(st store, pub *notify.Publisher, opts timeline.Options) *timeline.Synchronizer {
	options := []timeline.Option{timeline.WithJournal(st)}
	if pub != nil {
		options = append(options, timeline.WithPublisher(pub))
	}
	return timeline.NewSynchronizer(st, opts, options...)
}
