package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"backup-timeline/internal/startup"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "backup-timeline %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return err
		},
	}
}
