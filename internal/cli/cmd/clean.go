package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voxtrim/internal/util/format"
	"voxtrim/internal/workspace"
)

func newCleanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clean",
		Short:         "Remove workspace entries older than the retention window",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws := workspace.New(a.cfg.WorkspaceDir, a.cfg.Retention, a.log.Named("workspace"))
			st, err := ws.Sweep(time.Now())
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			out := cmd.OutOrStdout()
			if st.Skipped {
				fmt.Fprintln(out, "Sweep skipped: another voxtrim process is cleaning", ws.Root)
				return nil
			}
			fmt.Fprintf(out, "Removed %d entries (%s) from %s\n", st.Removed, format.HumanizeBytes(st.Bytes), ws.Root)
			return nil
		},
	}
	bindWorkspaceFlags(cmd.Flags())
	return cmd
}
