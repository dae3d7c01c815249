package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"voxtrim/internal/util"
	"voxtrim/internal/util/media"
	"voxtrim/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Transcode media files as they land in a directory",
		Long: "watch processes every new media file that appears in dir once it has stopped " +
			"changing for --settle. Files already present are left alone. Stop with Ctrl-C.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.jobOptions(cmd)
			ffmpegPath, ffprobePath, err := a.tools(true)
			if err != nil {
				return exitErr(err)
			}
			if opts.OutDir != "" {
				if err := util.EnsureDir(opts.OutDir); err != nil {
					return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("failed to create output dir: %w", err)}
				}
			}

			// Later arrivals sharing a stem with an earlier one get a qualified name.
			namer := media.NewNamer(opts.OutDir, opts.Suffix, opts.Profile)
			w, err := watch.New(args[0], func(_ context.Context, path string) error {
				return a.runOne(cmd, path, ffmpegPath, ffprobePath, opts, namer)
			},
				watch.WithSettle(a.cfg.WatchSettle),
				watch.WithSuffix(opts.Suffix),
				watch.WithLogger(a.log.Named("watch")),
			)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", args[0])
			return w.Run(cmd.Context())
		},
	}
	bindJobFlags(cmd.Flags())
	cmd.Flags().Bool("delete-input", false, "Delete each input after a successful transcode")
	cmd.Flags().Duration("settle", watch.DefaultSettle, "Quiet period before a new file is processed")
	return cmd
}
