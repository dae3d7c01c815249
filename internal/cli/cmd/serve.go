package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"voxtrim/internal/server"
	"voxtrim/internal/workspace"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP upload, transcode and download service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ffmpegPath, ffprobePath, err := a.tools(true)
			if err != nil {
				return exitErr(err)
			}
			ws := workspace.New(a.cfg.WorkspaceDir, a.cfg.Retention, a.log.Named("workspace"))
			srv, err := server.New(server.Options{
				Workspace:   ws,
				Job:         a.cfg.Job,
				FFmpegPath:  ffmpegPath,
				FFprobePath: ffprobePath,
				Jobs:        a.cfg.Job.Jobs,
				Logger:      a.log.Named("server"),
			})
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return srv.ListenAndServe(cmd.Context(), a.cfg.Listen)
		},
	}
	cmd.Flags().String("listen", ":8080", "Address to listen on")
	bindWorkspaceFlags(cmd.Flags())
	bindJobFlags(cmd.Flags())
	return cmd
}

func bindWorkspaceFlags(fs *pflag.FlagSet) {
	fs.String("workspace", "", "Workspace directory for uploads and artifacts (default $XDG_CACHE_HOME/voxtrim/workspace)")
	fs.Duration("retention", workspace.DefaultRetention, "How long workspace entries are kept")
}
