// Package encoder drives ffmpeg for audio-only transcodes and turns its
// stderr stats into progress events.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"voxtrim/internal/model"
	"voxtrim/internal/util"
)

// ProcessError reports a non-zero ffmpeg exit. Any partial output is left on
// disk for the caller to dispose of.
type ProcessError struct {
	Code   int
	Stderr string // last lines of ffmpeg's diagnostic output
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg exited with status %d", e.Code)
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.Code, e.Stderr)
}

// Job is one transcode attempt.
type Job struct {
	InputPath   string
	OutputPath  string
	DurationSec float64 // from a successful probe; used to normalise progress
	Settings    model.TranscodeSettings
}

// ProgressFunc receives events in the order ffmpeg printed them.
type ProgressFunc func(model.ProgressEvent)

// Driver runs ffmpeg through a util.CmdRunner.
type Driver struct {
	binary  string
	runner  util.CmdRunner
	log     hclog.Logger
	verbose bool
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithRunner replaces the subprocess runner.
func WithRunner(r util.CmdRunner) Option {
	return func(d *Driver) {
		if r != nil {
			d.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithVerbose echoes the ffmpeg command and its output to the terminal.
func WithVerbose(v bool) Option {
	return func(d *Driver) { d.verbose = v }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New returns a Driver for the given ffmpeg binary ("ffmpeg" when empty).
func New(binary string, opts ...Option) *Driver {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	d := &Driver{
		binary: binary,
		runner: util.NewDefaultRunner(),
		log:    hclog.NewNullLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Transcode runs ffmpeg to completion, calling onProgress for every time=
// token on stderr and once more with fraction 1.0 after a clean exit.
//
// The returned TranscodeResult is always populated. Succeeded is true only
// for exit status 0. A non-zero exit yields a *ProcessError; cancellation of
// ctx kills ffmpeg and yields the context error with ExitCode -1. Transcode
// returns only after ffmpeg has been reaped and its pipes drained.
func (d *Driver) Transcode(ctx context.Context, job Job, onProgress ProgressFunc) (model.TranscodeResult, error) {
	res := model.TranscodeResult{ExitCode: -1, OutputPath: job.OutputPath}

	if err := validate(job); err != nil {
		return res, err
	}
	if err := util.EnsureDir(filepath.Dir(job.OutputPath)); err != nil {
		return res, fmt.Errorf("ensure output dir: %w", err)
	}
	if onProgress == nil {
		onProgress = func(model.ProgressEvent) {}
	}

	args := BuildArgs(job.InputPath, job.OutputPath, job.Settings)
	log := d.log.With("input", job.InputPath, "output", job.OutputPath)
	log.Debug("starting ffmpeg", "cmd", util.ShellQuote(d.binary, args), "bitrate_kbps", job.Settings.BitrateKbps)

	tracker := NewTracker(job.DurationSec)
	start := d.now()

	runRes, runErr := d.runner.Run(ctx, util.CmdSpec{
		Path:    d.binary,
		Args:    args,
		Verbose: d.verbose,
		StderrLine: func(line string) {
			if ev, ok := tracker.Observe(line, d.now().Sub(start)); ok {
				onProgress(ev)
				return
			}
			if strings.TrimSpace(line) != "" {
				log.Trace("ffmpeg", "line", line)
			}
		},
	})
	elapsed := d.now().Sub(start)
	res.ElapsedSec = elapsed.Seconds()
	res.ExitCode = runRes.Code

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			log.Debug("ffmpeg cancelled", "elapsed", elapsed, "fraction", tracker.Fraction())
			return res, fmt.Errorf("transcode cancelled: %w", ctxErr)
		}
		if runRes.Code <= 0 {
			return res, fmt.Errorf("run ffmpeg: %w", runErr)
		}
		perr := &ProcessError{Code: runRes.Code, Stderr: tailLines(string(runRes.Stderr), 5)}
		log.Debug("ffmpeg failed", "exit_code", runRes.Code, "elapsed", elapsed)
		return res, perr
	}

	res.Succeeded = true
	res.ExitCode = 0
	onProgress(tracker.Finish(elapsed))
	log.Debug("ffmpeg finished", "elapsed", elapsed)
	return res, nil
}

func validate(job Job) error {
	if job.InputPath == "" {
		return errors.New("input path is required")
	}
	if job.OutputPath == "" {
		return errors.New("output path is required")
	}
	if job.DurationSec <= 0 {
		return fmt.Errorf("duration must be positive, got %v", job.DurationSec)
	}
	if filepath.Clean(job.InputPath) == filepath.Clean(job.OutputPath) {
		return errors.New("output path must differ from input path")
	}
	return job.Settings.Validate()
}

// tailLines returns the last n non-empty lines of s joined by "; ".
func tailLines(s string, n int) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		l := strings.TrimSpace(lines[i])
		if l == "" || timeRe.MatchString(l) {
			continue
		}
		kept = append(kept, l)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "; ")
}
