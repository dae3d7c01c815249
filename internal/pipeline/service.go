// Package pipeline orchestrates one voxtrim job: probe, solve, transcode,
// finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"voxtrim/internal/encoder"
	"voxtrim/internal/metrics"
	"voxtrim/internal/model"
	"voxtrim/internal/progress"
	"voxtrim/internal/prober"
	"voxtrim/internal/util"
	"voxtrim/internal/util/format"
)

// ErrorKind tells a caller which stage a job failed in.
type ErrorKind string

const (
	KindProbe     ErrorKind = "probe"
	KindTranscode ErrorKind = "transcode"
)

// StageError wraps the error that ended a job with the stage it came from.
type StageError struct {
	Kind ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf returns the stage of err, or "" when err did not come from a stage.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Service orchestrates the probe → plan → transcode → finalize workflow.
type Service struct {
	ffmpegPath  string
	ffprobePath string
	opts        model.JobOptions
	runner      util.CmdRunner
	reporter    progress.Reporter
	jobID       string
	log         hclog.Logger
	metrics     bool
	outputs     OutputNamer
}

// OutputNamer decides where an input's artifact is written, overriding the
// default <out dir>/<stem><suffix>.<ext>. media.Namer implements it.
type OutputNamer interface {
	OutputPath(input string) (string, error)
}

// OutputFunc adapts a function to OutputNamer.
type OutputFunc func(input string) (string, error)

func (f OutputFunc) OutputPath(input string) (string, error) { return f(input) }

// Option configures a Service.
type Option func(*Service)

// WithFFmpegPath sets the ffmpeg binary path.
func WithFFmpegPath(p string) Option {
	return func(s *Service) {
		s.ffmpegPath = p
	}
}

// WithFFprobePath sets the ffprobe binary path.
func WithFFprobePath(p string) Option {
	return func(s *Service) {
		s.ffprobePath = p
	}
}

// WithOptions sets the job options used for planning and execution.
func WithOptions(o model.JobOptions) Option {
	return func(s *Service) {
		s.opts = o
	}
}

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithReporter attaches a progress reporter.
func WithReporter(rp progress.Reporter) Option {
	return func(s *Service) {
		s.reporter = rp
	}
}

// WithJobID sets the job ID associated with reporter events.
func WithJobID(id string) Option {
	return func(s *Service) {
		s.jobID = id
	}
}

// WithLogger sets the structured logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithMetrics records job outcomes in the Prometheus instruments.
func WithMetrics(on bool) Option {
	return func(s *Service) {
		s.metrics = on
	}
}

// WithOutputNamer routes artifact paths through n.
func WithOutputNamer(n OutputNamer) Option {
	return func(s *Service) {
		s.outputs = n
	}
}

// NewService constructs a new Service with the provided options.
// It applies sensible defaults for missing components.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	if s.runner == nil {
		s.runner = util.NewDefaultRunner()
	}
	if s.log == nil {
		s.log = hclog.NewNullLogger()
	}
	s.opts = WithDefaults(s.opts)
	return s
}

// Options returns the effective job options after defaults.
func (s *Service) Options() model.JobOptions { return s.opts }

// Result returns the outcome of RunJob.
type Result struct {
	Input          string
	Planned        bool // dry run: nothing was encoded
	Plan           Plan
	Transcode      model.TranscodeResult
	Output         *model.OutputAudio
	Overshot       bool
	OvershootRatio float64
	InputDeleted   bool
}

// Plan probes input and decides the encode settings without running ffmpeg.
func (s *Service) Plan(ctx context.Context, input string) (Plan, error) {
	if s.ffprobePath == "" {
		return Plan{Input: input}, errors.New("ffprobe path is required")
	}
	p := prober.New(s.ffprobePath, prober.WithRunner(s.runner), prober.WithLogger(s.log))
	info, err := p.Probe(ctx, input)
	if err != nil {
		if s.metrics {
			metrics.ProbeFailuresTotal.Inc()
		}
		return Plan{Input: input}, &StageError{Kind: KindProbe, Err: err}
	}
	pl, err := BuildPlan(input, info, s.opts)
	if err != nil {
		return pl, fmt.Errorf("plan: %w", err)
	}
	if s.outputs != nil {
		out, err := s.outputs.OutputPath(input)
		if err != nil {
			return pl, fmt.Errorf("plan: %w", err)
		}
		pl.OutputPath = out
	}
	return pl, nil
}

// RunJob executes the full pipeline for a single input file.
// It never prints; when a Reporter is present, it emits progress and a final Result.
func (s *Service) RunJob(ctx context.Context, input string) (res Result, err error) {
	res.Input = input

	defer func() {
		if err != nil {
			s.emitError(err)
		}
	}()

	if !s.opts.DryRun && s.ffmpegPath == "" {
		return res, errors.New("ffmpeg path is required")
	}

	if s.metrics {
		metrics.JobsInFlight.Inc()
		defer metrics.JobsInFlight.Dec()
		defer func() { metrics.JobsTotal.WithLabelValues(resultLabel(ctx, err)).Inc() }()
	}

	log := s.log.With("input", input)

	// Step 1: probe and plan
	s.update(progress.Update{Stage: progress.StageProbing, Percent: -1, Message: "Probing"})
	pl, err := s.Plan(ctx, input)
	res.Plan = pl
	if err != nil {
		log.Debug("plan failed", "error", err)
		return res, err
	}
	log.Debug("planned", "output", pl.OutputPath, "bitrate_kbps", pl.Settings.BitrateKbps,
		"duration", pl.Info.DurationSec, "predicted_mb", pl.PredictedSizeMB, "manual", pl.Manual)

	if pl.ExceedsTarget {
		msg := fmt.Sprintf("warning: %dk over %s predicts %.1f MB, above the %.0f MB target",
			pl.Settings.BitrateKbps, format.DurationHuman(pl.Info.DurationSec), pl.PredictedSizeMB, pl.TargetSizeMB)
		log.Warn("predicted size exceeds target", "bitrate_kbps", pl.Settings.BitrateKbps,
			"predicted_mb", pl.PredictedSizeMB, "target_mb", pl.TargetSizeMB)
		s.logLine(msg)
	}

	// Dry-run path
	if s.opts.DryRun {
		res.Planned = true
		s.emitPlanned(pl)
		return res, nil
	}

	// Step 2: transcode
	drv := encoder.New(s.ffmpegPath,
		encoder.WithRunner(s.runner),
		encoder.WithLogger(s.log),
		encoder.WithVerbose(s.opts.Verbose),
	)
	job := encoder.Job{
		InputPath:   input,
		OutputPath:  pl.OutputPath,
		DurationSec: pl.Info.DurationSec,
		Settings:    pl.Settings,
	}
	tr, terr := drv.Transcode(ctx, job, func(ev model.ProgressEvent) {
		s.update(progress.Update{
			Stage:       progress.StageEncoding,
			Percent:     ev.Fraction * 100,
			Position:    ev.PositionSec,
			DurationSec: pl.Info.DurationSec,
			Elapsed:     time.Duration(ev.ElapsedWallSec * float64(time.Second)),
			BitrateKbps: pl.Settings.BitrateKbps,
			Speed:       ev.Speed,
			Message:     "Encoding",
		})
	})
	res.Transcode = tr
	if s.metrics {
		metrics.EncodeDuration.WithLabelValues(string(pl.Settings.Profile)).Observe(tr.ElapsedSec)
	}
	if terr != nil {
		log.Debug("transcode failed", "exit_code", tr.ExitCode, "error", terr)
		// A partial artifact would look like a finished one.
		if rerr := util.RemoveIfExists(pl.OutputPath); rerr != nil {
			log.Warn("could not remove partial output", "output", pl.OutputPath, "error", rerr)
		}
		return res, &StageError{Kind: KindTranscode, Err: terr}
	}

	// Step 3: finalize
	size, err := util.FileSize(pl.OutputPath)
	if err != nil {
		return res, &StageError{Kind: KindTranscode, Err: fmt.Errorf("stat output: %w", err)}
	}
	out := model.OutputAudio{
		OutputPath:  pl.OutputPath,
		Bytes:       size,
		BitrateKbps: pl.Settings.BitrateKbps,
		Profile:     pl.Settings.Profile,
		ElapsedSec:  tr.ElapsedSec,
	}
	res.Output = &out
	if s.metrics {
		metrics.OutputBytes.Observe(float64(size))
	}

	res.Overshot, res.OvershootRatio = s.checkOvershoot(size)
	if res.Overshot {
		log.Warn("output exceeds target", "output_bytes", size, "ratio", res.OvershootRatio)
	}

	if s.opts.DeleteInput {
		if derr := util.RemoveIfExists(input); derr != nil {
			log.Warn("could not delete input", "error", derr)
			s.logLine(fmt.Sprintf("warning: failed to delete input: %v", derr))
		} else {
			res.InputDeleted = true
		}
	}

	log.Info("saved", "output", out.OutputPath, "output_bytes", out.Bytes,
		"bitrate_kbps", out.BitrateKbps, "elapsed", time.Duration(tr.ElapsedSec*float64(time.Second)))
	s.emitSaved(out)
	return res, nil
}

func resultLabel(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case ctx.Err() != nil:
		return metrics.ResultCancelled
	case KindOf(err) == KindProbe:
		return metrics.ResultProbeError
	default:
		return metrics.ResultTranscodeError
	}
}

func (s *Service) update(u progress.Update) {
	if s.reporter == nil {
		return
	}
	u.JobID = s.jobID
	s.reporter.Update(u)
}

func (s *Service) logLine(line string) {
	if s.reporter == nil {
		return
	}
	s.reporter.Log(progress.Log{JobID: s.jobID, Stream: progress.StreamStderr, Line: line})
}

// emitPlanned sends a final "planned" update and reporter result.
func (s *Service) emitPlanned(pl Plan) {
	if s.reporter == nil {
		return
	}
	name := filepath.Base(pl.OutputPath)
	s.update(progress.Update{
		Stage:       progress.StageCompleted,
		Percent:     100,
		DurationSec: pl.Info.DurationSec,
		BitrateKbps: pl.Settings.BitrateKbps,
		Message:     fmt.Sprintf("Planned: %s at %dk (dry-run)", name, pl.Settings.BitrateKbps),
	})
	s.reporter.Result(progress.Result{
		JobID:       s.jobID,
		OutputPath:  pl.OutputPath,
		BitrateKbps: pl.Settings.BitrateKbps,
	})
}

// emitSaved sends a final "saved" update and reporter result.
func (s *Service) emitSaved(out model.OutputAudio) {
	if s.reporter == nil {
		return
	}
	name := filepath.Base(out.OutputPath)
	size := format.HumanizeBytes(out.Bytes)
	s.update(progress.Update{
		Stage:       progress.StageCompleted,
		Percent:     100,
		BitrateKbps: out.BitrateKbps,
		Message:     fmt.Sprintf("Saved: %s (%s)", name, size),
	})
	s.reporter.Result(progress.Result{
		JobID:       s.jobID,
		OutputPath:  out.OutputPath,
		Bytes:       out.Bytes,
		BitrateKbps: out.BitrateKbps,
	})
}

func (s *Service) emitError(err error) {
	if s.reporter == nil {
		return
	}
	s.update(progress.Update{Stage: progress.StageError, Percent: -1, Message: err.Error()})
	s.reporter.Result(progress.Result{JobID: s.jobID, Err: err})
}

// checkOvershoot determines whether the output size exceeds the target by >10%.
func (s *Service) checkOvershoot(outBytes int64) (bool, float64) {
	if s.opts.TargetSizeMB <= 0 {
		return false, 0
	}
	ratio := format.BytesToMB(outBytes) / s.opts.TargetSizeMB
	return ratio > 1.10, ratio
}
