package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/database"
)

func dates(bs []backup.Backup) []int {
	var days []int
	for _, b := range bs {
		days = append(days, int(b.Date().Sub(baseDate).Hours()/24))
	}
	return days
}

func TestSelectBackups(t *testing.T) {
	all := backups(
		&fakeBackup{date: baseDate},
		&fakeBackup{date: baseDate.AddDate(0, 0, 1)},
		&fakeBackup{date: baseDate.AddDate(0, 0, 2)},
	)
	watermark := baseDate.AddDate(0, 0, 1)

	tests := []struct {
		name         string
		watermark    time.Time
		has          bool
		mode         Mode
		wantSelected []int
		wantSkipped  []int
	}{
		{"no watermark", time.Time{}, false, Mode{}, []int{0, 1, 2}, nil},
		{"no watermark latest", time.Time{}, false, Mode{ProcessLatest: true}, []int{0, 1, 2}, nil},
		{"newer only", watermark, true, Mode{}, []int{2}, []int{0, 1}},
		{"latest included", watermark, true, Mode{ProcessLatest: true}, []int{1, 2}, []int{0}},
		{"process all", watermark, true, Mode{ProcessAll: true}, []int{0, 1, 2}, nil},
		{"process all wins over latest", watermark, true, Mode{ProcessAll: true, ProcessLatest: true}, []int{0, 1, 2}, nil},
		{"sub-second watermark", watermark.Add(400 * time.Millisecond), true, Mode{ProcessLatest: true}, []int{1, 2}, []int{0}},
		{"watermark past everything", baseDate.AddDate(0, 0, 9), true, Mode{}, nil, []int{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SelectBackups(all, tt.watermark, tt.has, tt.mode)

			if got := dates(sel.Selected); !equalInts(got, tt.wantSelected) {
				t.Errorf("Selected = %v, want %v", got, tt.wantSelected)
			}
			if got := dates(sel.Skipped); !equalInts(got, tt.wantSkipped) {
				t.Errorf("Skipped = %v, want %v", got, tt.wantSkipped)
			}
			if sel.HasWatermark != tt.has {
				t.Errorf("HasWatermark = %v, want %v", sel.HasWatermark, tt.has)
			}
		})
	}
}

func TestSelectBackupsSubSecondBackupDate(t *testing.T) {
	// A backup taken within the watermark's second is the watermark backup.
	b := &fakeBackup{date: baseDate.Add(700 * time.Millisecond)}

	sel := SelectBackups(backups(b), baseDate, true, Mode{})
	if len(sel.Selected) != 0 {
		t.Errorf("backup in the watermark second should be skipped by default")
	}
}

type failingWatermarkStore struct{}

func (failingWatermarkStore) LatestBackupDate(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errBoom
}

func (failingWatermarkStore) PendingBackups(context.Context, string) ([]time.Time, error) {
	return nil, nil
}

func TestSelectUsesStore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	bs := backups(&fakeBackup{date: baseDate}, &fakeBackup{date: baseDate.AddDate(0, 0, 1)})

	sel, err := Select(ctx, store, "laptop", bs, Mode{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.HasWatermark || len(sel.Selected) != 2 {
		t.Errorf("empty store: HasWatermark=%v selected=%d, want false 2", sel.HasWatermark, len(sel.Selected))
	}

	if _, err := store.ReplaceBackupEntries(ctx, "laptop", baseDate, []database.Entry{{Schema: "file.image"}}); err != nil {
		t.Fatal(err)
	}
	sel, err = Select(ctx, store, "laptop", bs, Mode{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !sel.Watermark.Equal(baseDate) || len(sel.Selected) != 1 {
		t.Errorf("watermark=%v selected=%d, want %v 1", sel.Watermark, len(sel.Selected), baseDate)
	}

	if _, err := Select(ctx, failingWatermarkStore{}, "laptop", bs, Mode{}); !errors.Is(err, errBoom) {
		t.Errorf("Select() error = %v, want store error", err)
	}
}

func TestSelectRequeuesPendingBackups(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	day1 := baseDate.AddDate(0, 0, 1)
	bs := backups(&fakeBackup{date: baseDate}, &fakeBackup{date: day1}, &fakeBackup{date: baseDate.AddDate(0, 0, 2)})

	if _, err := store.ReplaceBackupEntries(ctx, "laptop", baseDate.AddDate(0, 0, 2), []database.Entry{{Schema: "file.image"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkBackupPending(ctx, "laptop", day1.Add(300*time.Millisecond), "boom"); err != nil {
		t.Fatal(err)
	}

	sel, err := Select(ctx, store, "laptop", bs, Mode{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(sel.Selected) != 1 || !sel.Selected[0].Date().Equal(day1) {
		t.Fatalf("Selected = %v, want only the pending backup", sel.Selected)
	}
	if sel.Retried != 1 || len(sel.Skipped) != 2 {
		t.Errorf("Retried=%d Skipped=%d, want 1 2", sel.Retried, len(sel.Skipped))
	}

	// Backups the watermark selects anyway are not counted as retries.
	sel, err = Select(ctx, store, "laptop", bs, Mode{ProcessAll: true})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(sel.Selected) != 3 || sel.Retried != 0 {
		t.Errorf("ProcessAll: selected=%d retried=%d, want 3 0", len(sel.Selected), sel.Retried)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
