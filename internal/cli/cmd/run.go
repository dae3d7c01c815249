package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"voxtrim/internal/model"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/progress"
	"voxtrim/internal/ui"
	"voxtrim/internal/util"
	"voxtrim/internal/util/deps"
	"voxtrim/internal/util/format"
	"voxtrim/internal/util/media"
)

type runMode struct {
	ForceTUI bool
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run [files...]",
		Short:         "Probe, size and transcode each file",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFiles(cmd, args, runMode{})
		},
	}
	bindJobFlags(cmd.Flags())
	bindRunFlags(cmd.Flags())
	return cmd
}

// jobOptions returns the configured job options plus the run-only switches.
func (a *app) jobOptions(cmd *cobra.Command) model.JobOptions {
	o := a.cfg.Job
	if v, err := cmd.Flags().GetBool("dry-run"); err == nil && v {
		o.DryRun = true
	}
	if v, err := cmd.Flags().GetBool("no-ui"); err == nil && v {
		o.NoUI = true
	}
	return o
}

// tools locates ffprobe and, when needed, ffmpeg.
func (a *app) tools(needFFmpeg bool) (ffmpegPath, ffprobePath string, err error) {
	ffprobePath, err = deps.FindFFprobe(a.cfg.Job.FFprobeBinary)
	if err != nil {
		return "", "", err
	}
	if needFFmpeg {
		ffmpegPath, err = deps.FindFFmpeg(a.cfg.Job.FFmpegBinary)
		if err != nil {
			return "", "", err
		}
	}
	a.log.Debug("resolved tools", "ffmpeg", ffmpegPath, "ffprobe", ffprobePath)
	return ffmpegPath, ffprobePath, nil
}

func (a *app) runFiles(cmd *cobra.Command, args []string, mode runMode) error {
	opts := a.jobOptions(cmd)
	if opts.DryRun && !mode.ForceTUI {
		return a.planFiles(cmd, args)
	}
	files, err := media.ExpandInputs(args, opts.Suffix)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	namer := media.NewNamer(opts.OutDir, opts.Suffix, opts.Profile)
	if err := namer.Reserve(files...); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	ffmpegPath, ffprobePath, err := a.tools(!opts.DryRun)
	if err != nil {
		return exitErr(err)
	}
	if opts.OutDir != "" {
		if err := util.EnsureDir(opts.OutDir); err != nil {
			return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("failed to create output dir: %w", err)}
		}
	}

	if mode.ForceTUI || (!opts.NoUI && isTerminal()) {
		err := ui.Run(cmd.Context(), files, ui.Options{
			Job:         opts,
			FFmpegPath:  ffmpegPath,
			FFprobePath: ffprobePath,
			Outputs:     namer,
		})
		if err != nil {
			return exitErr(err)
		}
		return nil
	}

	for _, f := range files {
		if err := a.runOne(cmd, f, ffmpegPath, ffprobePath, opts, namer); err != nil {
			return exitErr(err)
		}
	}
	return nil
}

func (a *app) runOne(cmd *cobra.Command, file, ffmpegPath, ffprobePath string, opts model.JobOptions, outputs pipeline.OutputNamer) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	rep := newTextReporter(out, errOut, filepath.Base(file), isTerminal())
	if n, err := util.FileSize(file); err == nil {
		rep.inputBytes = n
	}

	svc := pipeline.NewService(
		pipeline.WithFFmpegPath(ffmpegPath),
		pipeline.WithFFprobePath(ffprobePath),
		pipeline.WithOptions(opts),
		pipeline.WithReporter(rep),
		pipeline.WithLogger(a.log),
		pipeline.WithOutputNamer(outputs),
	)
	res, err := svc.RunJob(cmd.Context(), file)
	rep.endLine()
	if err != nil {
		return err
	}

	if res.Overshot && res.Output != nil {
		fmt.Fprintf(errOut, "warning: output size (%s) exceeds target (%.0f MB) by %.0f%%. Consider a lower --bitrate or --target-size.\n",
			format.HumanizeBytes(res.Output.Bytes), opts.TargetSizeMB, (res.OvershootRatio-1)*100)
	}
	if res.InputDeleted {
		fmt.Fprintf(out, "Deleted input: %s\n", file)
	}
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// textReporter prints progress for the non-TUI path. On a terminal the
// encoding line is redrawn in place; otherwise a line is printed every 10%.
type textReporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	name   string
	tty    bool

	inputBytes int64 // shown in the header when known

	step   int
	last   int
	headed bool
	inline bool // an unterminated redraw line is on screen
}

func newTextReporter(out, errOut io.Writer, name string, tty bool) *textReporter {
	step := 10
	if tty {
		step = 1
	}
	return &textReporter{out: out, errOut: errOut, name: name, tty: tty, step: step, last: -1}
}

func (r *textReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch u.Stage {
	case progress.StageEncoding:
		if !r.headed && u.DurationSec > 0 {
			r.headed = true
			name := r.name
			if r.inputBytes > 0 {
				name += " (" + format.HumanizeBytes(r.inputBytes) + ")"
			}
			fmt.Fprintf(r.out, "%s: %s at %dk\n", name, format.DurationHuman(u.DurationSec), u.BitrateKbps)
		}
		if u.Percent < 0 {
			return
		}
		bucket := int(u.Percent) / r.step
		if bucket == r.last {
			return
		}
		r.last = bucket
		if r.tty {
			fmt.Fprintf(r.out, "\r\033[K%s", u.Status())
			r.inline = true
			return
		}
		fmt.Fprintln(r.out, u.Status())
	case progress.StageCompleted:
		r.endLineLocked()
		fmt.Fprintln(r.out, u.Message)
	case progress.StageError:
		r.endLineLocked()
	}
}

func (r *textReporter) Log(l progress.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLineLocked()
	fmt.Fprintln(r.errOut, l.Line)
}

func (r *textReporter) Result(progress.Result) {}

func (r *textReporter) endLine() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLineLocked()
}

func (r *textReporter) endLineLocked() {
	if r.inline {
		fmt.Fprintln(r.out)
		r.inline = false
	}
}
