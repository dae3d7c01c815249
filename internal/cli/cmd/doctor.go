package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"voxtrim/internal/prober"
	"voxtrim/internal/util/format"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:           "doctor [files...]",
		Short:         "Diagnose external dependencies (ffmpeg, ffprobe) and show resolved paths",
		Long:          "Diagnose external dependencies (ffmpeg, ffprobe) and show resolved paths.\nGiven files, also check that ffprobe can read each one's duration.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ff, fp, err := a.tools(true)
			if err != nil {
				return exitErr(err)
			}
			out := cmd.OutOrStdout()
			cfgFile := a.v.ConfigFileUsed()
			if cfgFile == "" {
				cfgFile = "(none)"
			}
			fmt.Fprintf(out, "FFmpeg:     %s\n", ff)
			fmt.Fprintf(out, "FFprobe:    %s\n", fp)
			fmt.Fprintf(out, "Config:     %s\n", cfgFile)
			fmt.Fprintf(out, "Workspace:  %s\n", a.cfg.WorkspaceDir)

			p := prober.New(fp, prober.WithLogger(a.log.Named("probe")))
			var failed error
			for _, f := range args {
				d, err := p.ProbeDuration(cmd.Context(), f)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", filepath.Base(f), err)
					if failed == nil {
						failed = err
					}
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", filepath.Base(f), format.DurationHuman(d))
			}
			if failed != nil {
				return &ExitError{Code: ExitProbeError, Err: failed}
			}
			return nil
		},
	}
}
