package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/startup"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	cfg *startup.Config
}

// config loads the configuration once per invocation.
func (a *app) config() (*startup.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := startup.LoadConfig(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "backup-timeline",
		Short: "Turn backup snapshots into a searchable timeline of file entries",
		Long: `backup-timeline walks the snapshots of one or more backup sources, records
which eligible files changed in each backup, and renders previews of them.

Examples:
  backup-timeline sync                       # sync every configured source
  backup-timeline sync photos --latest       # replay the newest backup of "photos"
  backup-timeline serve                      # run the sync daemon with its ops endpoints
  backup-timeline preview image in.heic out.jpg --width 320 --height 240
  backup-timeline entries list --source photos --schema file.image`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.logLevel == "" {
				return nil
			}
			level, ok := logging.ParseLevel(a.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", a.logLevel)
			}
			logging.SetLevel(level)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Config file (default: search ./, ~/.config/backup-timeline, /etc/backup-timeline)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")

	root.AddCommand(
		newSyncCmd(a),
		newServeCmd(a),
		newPreviewCmd(a),
		newEntriesCmd(a),
		newRunsCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
