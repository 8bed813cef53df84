package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"backup-timeline/internal/database"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/mediatypes"
	"backup-timeline/internal/metrics"
	"backup-timeline/internal/transcoder"
	"backup-timeline/internal/workers"
)

// DurationProber reports a video's duration.
type DurationProber interface {
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
}

// Batch renders previews of stored entries into the preview cache.
type Batch struct {
	Generator *Generator
	Prober    DurationProber
	CacheDir  string
	ImageBox  Box
	VideoBox  Box
	Workers   int
	Force     bool
}

// BatchResult is the outcome for one entry.
type BatchResult struct {
	Path    string
	Kind    Kind
	Output  string
	Cached  bool
	Skipped bool
	Err     error
}

// BatchReport aggregates a batch run.
type BatchReport struct {
	Generated int
	CacheHits int
	Skipped   int
	Failed    int
	Results   []BatchResult
}

// Run renders previews for entries. Entries without a preview kind are
// skipped. Per-entry failures are collected in the report; the returned
// error is only set when the run itself could not proceed.
func (b *Batch) Run(ctx context.Context, entries []database.Entry) (*BatchReport, error) {
	if err := os.MkdirAll(filepath.Join(b.CacheDir, CacheSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preview cache: %w", err)
	}

	n := b.Workers
	if n <= 0 {
		n = workers.ForMixed(0)
	}

	var mu sync.Mutex
	report := &BatchReport{}

	results, err := workers.Map(ctx, n, entries, func(ctx context.Context, e database.Entry) (BatchResult, error) {
		res := b.render(ctx, e)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Cached:
			report.CacheHits++
			metrics.PreviewCacheHits.Inc()
		case res.Err != nil:
			report.Failed++
			metrics.PreviewCacheMisses.Inc()
			logging.Warn("Preview of %s failed: %v", res.Path, res.Err)
		default:
			report.Generated++
			metrics.PreviewCacheMisses.Inc()
		}
		return res, nil
	})
	report.Results = results
	if err != nil {
		return report, err
	}

	if size, err := CacheSize(b.CacheDir); err == nil {
		metrics.PreviewCacheSize.Set(float64(size))
	}

	logging.Info("Preview batch complete: %d generated, %d cached, %d skipped, %d failed",
		report.Generated, report.CacheHits, report.Skipped, report.Failed)
	return report, nil
}

// KindForSchema maps an entry schema to its preview kind.
func KindForSchema(schema string) (Kind, bool) {
	switch mediatypes.KindFromSchema(schema) {
	case mediatypes.KindImage:
		return KindImage, true
	case mediatypes.KindPDF:
		return KindPDF, true
	case mediatypes.KindVideo:
		return KindVideo, true
	}
	return "", false
}

func (b *Batch) render(ctx context.Context, e database.Entry) BatchResult {
	path := e.Attributes.Path
	res := BatchResult{Path: path}

	kind, ok := KindForSchema(e.Schema)
	if !ok {
		res.Skipped = true
		return res
	}
	res.Kind = kind

	switch kind {
	case KindVideo:
		res.Output = CachePath(b.CacheDir, path, ".mp4")
		if _, err := os.Stat(res.Output); err == nil && !b.Force {
			res.Cached = true
			return res
		}
		info, err := b.Prober.Probe(ctx, path)
		if err != nil {
			res.Err = fmt.Errorf("probing %s: %w", path, err)
			return res
		}
		res.Err = b.Generator.Video(ctx, path, res.Output, info.Duration, b.VideoBox, b.Force)
	case KindPDF:
		res.Output = CachePath(b.CacheDir, path, ".jpg")
		res.Err = b.Generator.PDF(ctx, path, res.Output, b.ImageBox, b.Force)
	default:
		res.Output = CachePath(b.CacheDir, path, ".jpg")
		res.Err = b.Generator.Image(ctx, path, res.Output, b.ImageBox, b.Force)
	}

	if errors.Is(res.Err, ErrAlreadyExists) {
		res.Err = nil
		res.Cached = true
	}
	return res
}
