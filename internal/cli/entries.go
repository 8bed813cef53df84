package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"backup-timeline/internal/database"
)

func newEntriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect stored timeline entries",
	}
	cmd.AddCommand(newEntriesListCmd(a))
	return cmd
}

func newEntriesListCmd(a *app) *cobra.Command {
	var (
		filter database.EntryFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries in timeline order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if filter.BackupDate != "" {
				if _, err := database.ParseBackupDate(filter.BackupDate); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListEntries(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			if err := renderEntries(cmd.OutOrStdout(), entries); err != nil {
				return err
			}
			total, err := st.CountEntries(ctx, filter)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d entries\n", len(entries), total)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Source, "source", "", "Only entries of this source")
	f.StringVar(&filter.BackupDate, "backup-date", "", "Only entries of this backup (RFC 3339)")
	f.StringVar(&filter.Schema, "schema", "", "Only entries of this schema (e.g. file.video)")
	f.IntVar(&filter.Limit, "limit", 100, "Maximum number of entries (0 = all)")
	f.IntVar(&filter.Offset, "offset", 0, "Entries to skip")
	f.BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func renderEntries(out io.Writer, entries []database.Entry) error {
	t := newTable("SOURCE", "BACKUP", "SCHEMA", "DATE", "PATH")
	for _, e := range entries {
		t.Append(e.Attributes.Source, e.Attributes.BackupDate, e.Schema, database.FormatBackupDate(e.DateOnTimeline), e.Attributes.Path)
	}
	return t.Render(out)
}

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the sync run journal",
	}

	var (
		source string
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListSyncRuns(ctx, source, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			return renderRuns(cmd.OutOrStdout(), runs)
		},
	}
	list.Flags().StringVar(&source, "source", "", "Only runs of this source")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(list)
	return cmd
}

func renderRuns(out io.Writer, runs []database.SyncRun) error {
	t := newTable("STARTED", "SOURCE", "STATUS", "PROCESSED", "SKIPPED", "FAILED", "UNPROCESSED", "ENTRIES", "ID")
	for _, r := range runs {
		t.Append(
			database.FormatBackupDate(r.StartedAt),
			r.Source,
			string(r.Status),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Unprocessed),
			strconv.Itoa(r.EntriesCreated),
			r.ID,
		)
	}
	return t.Render(out)
}

func writeJSON(out io.Writer, v any) error {
	enc := sonic.ConfigStd.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
