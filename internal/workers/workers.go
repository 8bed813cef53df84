package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// OverrideEnv is the environment variable that pins the worker count.
const OverrideEnv = "TIMELINE_WORKERS"

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Map calls fn for every input using at most n goroutines and returns the
// results in input order. The first error cancels the context passed to the
// remaining calls and is returned.
func Map[T, R any](ctx context.Context, n int, inputs []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if n < 1 {
		n = 1
	}

	results := make([]R, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, in)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
