package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestMetadataIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetMetadata(missing) error = %v, want sql.ErrNoRows", err)
	}

	for _, value := range []string{"first", "second", ""} {
		if err := db.SetMetadata(ctx, "key", value); err != nil {
			t.Fatalf("SetMetadata(%q) failed: %v", value, err)
		}
		got, err := db.GetMetadata(ctx, "key")
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
		if got != value {
			t.Errorf("GetMetadata = %q, want %q", got, value)
		}
	}
}

func TestLastRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := setupTestDB(t)
	ctx := context.Background()

	got, err := db.GetLastRun(ctx, MetaLastSync)
	if err != nil {
		t.Fatalf("GetLastRun failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("GetLastRun before any run = %v, want zero", got)
	}

	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := db.SetLastRun(ctx, MetaLastSync, when); err != nil {
		t.Fatalf("SetLastRun failed: %v", err)
	}
	got, err = db.GetLastRun(ctx, MetaLastSync)
	if err != nil {
		t.Fatalf("GetLastRun failed: %v", err)
	}
	if !got.Equal(when) {
		t.Errorf("GetLastRun = %v, want %v", got, when)
	}

	// Other keys are independent.
	other, err := db.GetLastRun(ctx, MetaLastPreviewBatch)
	if err != nil {
		t.Fatalf("GetLastRun failed: %v", err)
	}
	if !other.IsZero() {
		t.Errorf("GetLastRun(%s) = %v, want zero", MetaLastPreviewBatch, other)
	}

	if err := db.SetLastRun(ctx, MetaLastSync, time.Time{}); err != nil {
		t.Fatalf("SetLastRun(zero) failed: %v", err)
	}
	got, err = db.GetLastRun(ctx, MetaLastSync)
	if err != nil {
		t.Fatalf("GetLastRun failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("GetLastRun after clear = %v, want zero", got)
	}
}
