package cmd

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"voxtrim/internal/config"
	"voxtrim/internal/logging"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/util/deps"
)

const (
	ExitOK             = 0
	ExitCLIError       = 1
	ExitMissingDep     = 2
	ExitProbeError     = 3
	ExitTranscodeError = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitErr classifies err by the stage it came from.
func exitErr(err error) *ExitError {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	code := ExitCLIError
	switch {
	case errors.Is(err, deps.ErrNotFound):
		code = ExitMissingDep
	case pipeline.KindOf(err) == pipeline.KindProbe:
		code = ExitProbeError
	case pipeline.KindOf(err) == pipeline.KindTranscode:
		code = ExitTranscodeError
	}
	return &ExitError{Code: code, Err: err}
}

// app carries what every command resolves before running.
type app struct {
	v   *viper.Viper
	cfg config.Config
	log hclog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: logging.Nop()}

	root := &cobra.Command{
		Use:   "voxtrim [files...]",
		Short: "Shrink recordings into small speech-friendly audio files",
		Long: "voxtrim probes each recording, picks the highest audio bitrate that keeps the result under a " +
			"target size, and transcodes it to a mono 16 kHz AAC or MP3 file with live progress.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to run when no subcommand is specified.
			return a.runFiles(cmd, args, runMode{})
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/voxtrim/config.yaml)")
	pf.StringP("out-dir", "o", "", "Output directory (default: next to each input)")
	pf.BoolP("verbose", "v", false, "Show full ffmpeg commands and output")
	pf.Int("jobs", 2, "Max concurrent jobs in the TUI and HTTP service")
	pf.String("ffmpeg", "", "Path to ffmpeg")
	pf.String("ffprobe", "", "Path to ffprobe")
	pf.String("log-level", "info", "Log level: trace, debug, info, warn, error, off")
	pf.Bool("log-json", false, "Emit logs as JSON")

	bindJobFlags(root.Flags())
	bindRunFlags(root.Flags())

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := a.load(root, cmd); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		return nil
	}

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newPlanCmd(a))
	root.AddCommand(newTuiCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newCleanCmd(a))
	root.AddCommand(newDoctorCmd(a))
	root.AddCommand(newCompletionCmd())

	return root
}

// load resolves configuration for cmd: flag > env > config file > default.
func (a *app) load(root, cmd *cobra.Command) error {
	if path, _ := root.PersistentFlags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	}
	if err := config.Init(a.v, root); err != nil {
		return err
	}
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		JSON:   cfg.LogJSON,
		Output: cmd.ErrOrStderr(),
	})
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("loaded config", "path", used)
	}
	return nil
}

// bindJobFlags registers the encode settings shared by run, plan and tui.
func bindJobFlags(fs *pflag.FlagSet) {
	fs.Float64("target-size", pipeline.DefaultTargetSizeMB, "Target maximum output size in MB")
	fs.Float64("margin", 0.9, "Fraction of the target actually budgeted, in (0,1]")
	fs.String("range", "voice", "Bitrate clamp range: voice (12-64k) or general (12-192k)")
	fs.Int("min-kbps", 0, "Override the lower clamp bound")
	fs.Int("max-kbps", 0, "Override the upper clamp bound")
	fs.String("profile", "m4a", "Output profile: m4a (AAC) or mp3")
	fs.Int("channels", 1, "Output channels: 1 or 2")
	fs.Int("sample-rate", 16000, "Output sample rate in Hz")
	fs.Int("bitrate", 0, "Fixed bitrate in kbps; 0 solves it from the target size")
	fs.String("suffix", "_downsized", "Suffix appended to the input base name")
}

// bindRunFlags registers the flags that only matter when encoding.
func bindRunFlags(fs *pflag.FlagSet) {
	fs.Bool("delete-input", false, "Delete each input after a successful transcode")
	fs.Bool("no-ui", false, "Disable the TUI; print plain progress lines")
	fs.Bool("dry-run", false, "Show plan without executing")
	_ = fs.MarkDeprecated("dry-run", "use 'voxtrim plan' instead")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		return exitErr(err)
	}
	return nil
}

