package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"backup-timeline/internal/database"
	"backup-timeline/internal/preview"
	"backup-timeline/internal/startup"
	"backup-timeline/internal/transcoder"
)

// boxFlags overrides a configured bounding box.
type boxFlags struct {
	width, height int
}

func (b *boxFlags) register(f *pflag.FlagSet) {
	f.IntVar(&b.width, "width", 0, "Maximum preview width in pixels")
	f.IntVar(&b.height, "height", 0, "Maximum preview height in pixels")
}

func (b *boxFlags) apply(f *pflag.FlagSet, box preview.Box) (preview.Box, error) {
	if f.Changed("width") {
		box.Width = b.width
	}
	if f.Changed("height") {
		box.Height = b.height
	}
	return box, box.Validate()
}

func newPreviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Generate previews of images, PDFs and videos",
	}
	cmd.AddCommand(
		newPreviewFileCmd(a, preview.KindImage),
		newPreviewFileCmd(a, preview.KindPDF),
		newPreviewFileCmd(a, preview.KindVideo),
		newPreviewBatchCmd(a),
		newClearCacheCmd(a),
	)
	return cmd
}

func newGenerator(cfg *startup.Config) (*preview.Generator, *transcoder.Exec, error) {
	runner := transcoder.NewExec()
	gen, err := preview.NewGenerator(runner, preview.Options{
		Tools:       preview.Tools{Convert: cfg.Tools.Convert, FFmpeg: cfg.Tools.FFmpeg},
		ImageEngine: cfg.Preview.ImageEngine,
	})
	if err != nil {
		return nil, nil, err
	}
	return gen, runner, nil
}

func newPreviewFileCmd(a *app, kind preview.Kind) *cobra.Command {
	var (
		box       boxFlags
		overwrite bool
		duration  float64
	)

	cmd := &cobra.Command{
		Use:   string(kind) + " INPUT OUTPUT",
		Short: fmt.Sprintf("Render a %s preview of one file", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			defaults := cfg.Preview.ImageBox()
			if kind == preview.KindVideo {
				defaults = cfg.Preview.VideoBox()
			}
			b, err := box.apply(cmd.Flags(), defaults)
			if err != nil {
				return err
			}

			gen, runner, err := newGenerator(cfg)
			if err != nil {
				return err
			}
			defer runner.Cleanup()
			defer preview.ShutdownVips()

			ctx := cmd.Context()
			in, out := args[0], args[1]
			switch kind {
			case preview.KindImage:
				err = gen.Image(ctx, in, out, b, overwrite)
			case preview.KindPDF:
				err = gen.PDF(ctx, in, out, b, overwrite)
			case preview.KindVideo:
				// Refuse an existing output before spending an ffprobe run.
				if err := preview.CheckOutput(out, overwrite); err != nil {
					return err
				}
				if !cmd.Flags().Changed("duration") {
					info, perr := transcoder.NewProber(cfg.Tools.FFprobe, runner).Probe(ctx, in)
					if perr != nil {
						return fmt.Errorf("failed to determine duration of %s: %w", in, perr)
					}
					duration = info.Duration
				}
				err = gen.Video(ctx, in, out, duration, b, overwrite)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", in, out, b)
			return nil
		},
	}

	box.register(cmd.Flags())
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace OUTPUT if it exists")
	if kind == preview.KindVideo {
		cmd.Flags().Float64Var(&duration, "duration", 0, "Video duration in seconds (probed when omitted)")
	}
	return cmd
}

type batchOptions struct {
	source  string
	schema  string
	limit   int
	workers int
	force   bool
}

func newPreviewBatchCmd(a *app) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Render cached previews of stored entries",
		Long: `Render previews of the entries in the store into cache_dir/previews. Entries
whose preview already exists count as cache hits unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := startup.EnsureDirectory(cfg.CacheDir, "cache"); err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListEntries(ctx, database.EntryFilter{
				Source: opts.source,
				Schema: opts.schema,
				Limit:  opts.limit,
			})
			if err != nil {
				return err
			}

			startup.LogToolsInit(cfg.Tools, cfg.Preview.ImageEngine)
			gen, runner, err := newGenerator(cfg)
			if err != nil {
				return err
			}
			defer runner.Cleanup()
			defer preview.ShutdownVips()

			workers := cfg.Preview.Workers
			if cmd.Flags().Changed("workers") {
				workers = opts.workers
			}

			batch := &preview.Batch{
				Generator: gen,
				Prober:    transcoder.NewProber(cfg.Tools.FFprobe, runner),
				CacheDir:  cfg.CacheDir,
				ImageBox:  cfg.Preview.ImageBox(),
				VideoBox:  cfg.Preview.VideoBox(),
				Workers:   workers,
				Force:     opts.force,
			}
			report, err := batch.Run(ctx, entries)
			if err != nil {
				return err
			}
			markRun(ctx, st, database.MetaLastPreviewBatch)

			return renderBatch(cmd, report)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "Only entries of this source")
	f.StringVar(&opts.schema, "schema", "", "Only entries of this schema (e.g. file.image)")
	f.IntVar(&opts.limit, "limit", 0, "Maximum number of entries (0 = all)")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent renders (default from preview.workers)")
	f.BoolVar(&opts.force, "force", false, "Re-render previews that are already cached")
	return cmd
}

func renderBatch(cmd *cobra.Command, report *preview.BatchReport) error {
	out := cmd.OutOrStdout()

	t := newTable("PATH", "KIND", "RESULT")
	var failures []error
	for _, r := range report.Results {
		result := "generated"
		switch {
		case r.Skipped:
			continue
		case r.Cached:
			result = "cached"
		case r.Err != nil:
			result = "failed: " + strings.ReplaceAll(r.Err.Error(), "\n", " ")
			failures = append(failures, r.Err)
		}
		t.Append(r.Path, string(r.Kind), result)
	}
	if err := t.Render(out); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d generated, %d cached, %d skipped, %d failed\n",
		report.Generated, report.CacheHits, report.Skipped, report.Failed)

	if len(failures) > 0 {
		return fmt.Errorf("%d previews failed: %w", len(failures), errors.Join(failures...))
	}
	return nil
}

func newClearCacheCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove every cached preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			freed, err := preview.ClearCache(cfg.CacheDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Freed %s from %s\n", formatBytes(freed), cfg.CacheDir)
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
