package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backup-timeline/internal/database"
	"backup-timeline/internal/timeline"
)

type syncOptions struct {
	parallel        int
	all             bool
	latest          bool
	continueOnError bool
}

func newSyncCmd(a *app) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync [source...]",
		Short: "Record the changed files of new backups",
		Long: `Synchronize the timeline of the named sources, or of every configured source.

Only backups newer than the newest backup already stored are processed unless
--all or --latest is given. Each processed backup's entries replace whatever
was stored for that backup before.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.parallel, "parallel", "p", 0, "Sources to sync concurrently (default from sync.parallel)")
	f.BoolVar(&opts.all, "all", false, "Replay every backup, ignoring what is already stored")
	f.BoolVar(&opts.latest, "latest", false, "Also replay the newest stored backup")
	f.BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep processing later backups after one fails")
	cmd.MarkFlagsMutuallyExclusive("all", "latest")

	return cmd
}

func runSync(cmd *cobra.Command, a *app, opts *syncOptions, keys []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Sync.Parallel = max(opts.parallel, 1)
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Sync.ContinueOnError = opts.continueOnError
	}

	sources, err := selectSources(cfg, keys)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pub := connectPublisher(cfg)
	if pub != nil {
		defer pub.Close(ctx)
	}

	syncer := newSynchronizer(st, pub, timeline.Options{
		Mode:            timeline.Mode{ProcessAll: opts.all, ProcessLatest: opts.latest},
		ContinueOnError: cfg.Sync.ContinueOnError,
		Parallel:        cfg.Sync.Parallel,
	})

	reports := syncer.SyncAll(ctx, sources)
	markRun(ctx, st, database.MetaLastSync)

	if err := renderReports(cmd.OutOrStdout(), reports); err != nil {
		return err
	}

	var unclean int
	for _, r := range reports {
		if r.Status() != database.SyncSuccess {
			unclean++
		}
	}
	if unclean > 0 {
		return fmt.Errorf("%d of %d sources did not sync cleanly", unclean, len(reports))
	}
	return nil
}

func renderReports(out io.Writer, reports []*timeline.SourceReport) error {
	t := newTable("SOURCE", "STATUS", "PROCESSED", "SKIPPED", "FAILED", "UNPROCESSED", "ENTRIES", "DURATION", "ERROR")
	for _, r := range reports {
		var msg string
		if err := r.Error(); err != nil {
			msg = strings.ReplaceAll(err.Error(), "\n", "; ")
		}
		t.Append(
			r.Source,
			string(r.Status()),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed()),
			strconv.Itoa(r.Unprocessed),
			strconv.Itoa(r.EntriesCreated),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			msg,
		)
	}
	return t.Render(out)
}
