/*
Package workers sizes and runs bounded worker pools.

Worker counts are derived from GOMAXPROCS, which the Go runtime sets from the
container CPU limit, rather than runtime.NumCPU:

	n := workers.ForIO(16)   // snapshot comparison: stat and hash files
	n := workers.ForCPU(8)   // preview generation: one transcoder per CPU

Operators can pin the count with TIMELINE_WORKERS; the per-call limit still
applies.

Map fans a slice out over n goroutines and collects results in input order,
which keeps callers deterministic regardless of scheduling:

	sizes, err := workers.Map(ctx, n, paths, func(ctx context.Context, p string) (int64, error) {
		info, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	})
*/
package workers
