package cmd

import (
	"github.com/spf13/cobra"
)

func newTuiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tui [files...]",
		Short:         "Transcode files in the interactive terminal UI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// If stdout is not a terminal, bubbletea fails to open it and says so.
			return a.runFiles(cmd, args, runMode{ForceTUI: true})
		},
	}
	bindJobFlags(cmd.Flags())
	bindRunFlags(cmd.Flags())
	if f := cmd.Flags().Lookup("no-ui"); f != nil {
		f.Hidden = true
	}
	return cmd
}
