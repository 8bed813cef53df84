package timeline

import (
	"context"
	"fmt"
	"time"

	"backup-timeline/internal/backup"
)

// Mode selects which backups a sync replays.
type Mode struct {
	// ProcessAll replays every backup, ignoring the watermark.
	ProcessAll bool
	// ProcessLatest also replays the backup at the watermark.
	ProcessLatest bool
}

// Selection is the outcome of applying the watermark to a source's backups.
type Selection struct {
	Watermark    time.Time
	HasWatermark bool
	Selected     []backup.Backup
	Skipped      []backup.Backup
	// Retried counts selected backups the watermark alone would have
	// skipped, because an earlier sync of them failed.
	Retried int
}

// WatermarkStore reports the newest backup date stored for a source, and the
// backups whose last sync failed.
type WatermarkStore interface {
	LatestBackupDate(ctx context.Context, source string) (time.Time, bool, error)
	// PendingBackups lists the backup dates of source that failed and have
	// not been committed since.
	PendingBackups(ctx context.Context, source string) ([]time.Time, error)
}

// SelectBackups partitions backups, keeping their order. Without a watermark
// or with ProcessAll every backup is selected. Otherwise backups newer than
// the watermark are selected, plus the one at the watermark for
// ProcessLatest. Dates compare at whole-second UTC precision, the precision
// backup_date is stored with.
func SelectBackups(backups []backup.Backup, watermark time.Time, hasWatermark bool, mode Mode) Selection {
	return selectBackups(backups, watermark, hasWatermark, mode, nil)
}

// selectBackups is SelectBackups that also selects every backup whose date
// is pending.
func selectBackups(backups []backup.Backup, watermark time.Time, hasWatermark bool, mode Mode, pending map[time.Time]bool) Selection {
	sel := Selection{HasWatermark: hasWatermark}
	if hasWatermark {
		sel.Watermark = truncate(watermark)
	}

	for _, b := range backups {
		date := truncate(b.Date())
		switch {
		case selected(date, sel, mode):
			sel.Selected = append(sel.Selected, b)
		case pending[date]:
			sel.Selected = append(sel.Selected, b)
			sel.Retried++
		default:
			sel.Skipped = append(sel.Skipped, b)
		}
	}
	return sel
}

func selected(date time.Time, sel Selection, mode Mode) bool {
	if !sel.HasWatermark || mode.ProcessAll {
		return true
	}
	if mode.ProcessLatest {
		return !date.Before(sel.Watermark)
	}
	return date.After(sel.Watermark)
}

// Select looks up the source's watermark and applies SelectBackups. Backups
// that failed in an earlier sync are selected even when the watermark has
// moved past them, so a later commit never hides a failure.
func Select(ctx context.Context, store WatermarkStore, source string, backups []backup.Backup, mode Mode) (Selection, error) {
	watermark, ok, err := store.LatestBackupDate(ctx, source)
	if err != nil {
		return Selection{}, fmt.Errorf("looking up watermark of %q: %w", source, err)
	}
	dates, err := store.PendingBackups(ctx, source)
	if err != nil {
		return Selection{}, fmt.Errorf("looking up pending backups of %q: %w", source, err)
	}
	pending := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		pending[truncate(d)] = true
	}
	return selectBackups(backups, watermark, ok, mode, pending), nil
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
