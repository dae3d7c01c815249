package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"voxtrim/internal/pipeline"
	"voxtrim/internal/util/format"
	"voxtrim/internal/util/media"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan [files...]",
		Short:         "Probe each file and show the chosen settings without encoding",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.planFiles(cmd, args)
		},
	}
	bindJobFlags(cmd.Flags())
	return cmd
}

var planColumns = []column{
	{title: "Input"},
	{title: "Duration", right: true},
	{title: "Source"},
	{title: "Bitrate", right: true},
	{title: "Mode"},
	{title: "Predicted", right: true},
	{title: "Target", right: true},
	{title: "Output"},
}

func (a *app) planFiles(cmd *cobra.Command, args []string) error {
	files, err := media.ExpandInputs(args, a.cfg.Job.Suffix)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	namer := media.NewNamer(a.cfg.Job.OutDir, a.cfg.Job.Suffix, a.cfg.Job.Profile)
	if err := namer.Reserve(files...); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	_, ffprobePath, err := a.tools(false)
	if err != nil {
		return exitErr(err)
	}
	svc := pipeline.NewService(
		pipeline.WithFFprobePath(ffprobePath),
		pipeline.WithOptions(a.cfg.Job),
		pipeline.WithLogger(a.log),
		pipeline.WithOutputNamer(namer),
	)

	rows := make([][]string, 0, len(files))
	var warnings []string
	var totalSec, totalMB float64
	for _, f := range files {
		pl, err := svc.Plan(cmd.Context(), f)
		if err != nil {
			return exitErr(err)
		}
		rows = append(rows, planRow(pl))
		totalSec += pl.Info.DurationSec
		totalMB += pl.PredictedSizeMB
		if pl.ExceedsTarget {
			warnings = append(warnings, fmt.Sprintf("warning: %s: %dk over %s predicts %.1f MB, above the %.0f MB target",
				filepath.Base(f), pl.Settings.BitrateKbps, format.DurationHuman(pl.Info.DurationSec), pl.PredictedSizeMB, pl.TargetSizeMB))
		}
	}

	var footer []string
	if len(rows) > 1 {
		footer = []string{fmt.Sprintf("%d files", len(rows)), format.DurationHuman(totalSec), "", "", "", fmt.Sprintf("%.1f MB", totalMB)}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(planColumns, rows, footer))
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), w)
	}
	return nil
}

func planRow(pl pipeline.Plan) []string {
	mode := "solved"
	switch {
	case pl.Manual:
		mode = "manual"
	case pl.Clamped():
		mode = fmt.Sprintf("clamped from %dk", pl.IdealKbps)
	}
	return []string{
		filepath.Base(pl.Input),
		format.DurationHuman(pl.Info.DurationSec),
		pl.Info.ContainerFormat + "/" + pl.Info.AudioCodec,
		fmt.Sprintf("%dk %s", pl.Settings.BitrateKbps, pl.Settings.Profile),
		mode,
		fmt.Sprintf("%.1f MB", pl.PredictedSizeMB),
		fmt.Sprintf("%.0f MB", pl.TargetSizeMB),
		pl.OutputPath,
	}
}
