package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxtrim/internal/encoder"
	"voxtrim/internal/model"
	"voxtrim/internal/progress"
	"voxtrim/internal/prober"
	"voxtrim/internal/util"
	"voxtrim/internal/util/media"
)

type recordingReporter struct {
	mu      sync.Mutex
	updates []progress.Update
	results []progress.Result
	logs    []progress.Log
}

func (r *recordingReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}
func (r *recordingReporter) Log(l progress.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}
func (r *recordingReporter) Result(res progress.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

const (
	ffprobePath = "/bin/ffprobe"
	ffmpegPath  = "/bin/ffmpeg"
)

type fakeRunner struct {
	probeJSON        string // ffprobe stdout; empty simulates a probe failure
	ffmpegLines      []string
	ffmpegExit       int
	ffmpegOutputSize int64

	ffmpegCalls int
}

// Run implements util.CmdRunner.Run and simulates ffprobe and ffmpeg behavior.
func (f *fakeRunner) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	switch spec.Path {
	case ffprobePath:
		if f.probeJSON == "" {
			err := errors.New("exit status 1")
			return util.CmdResult{Stderr: []byte("Invalid data found when processing input"), Code: 1, Err: err}, err
		}
		return util.CmdResult{Stdout: []byte(f.probeJSON)}, nil

	case ffmpegPath:
		f.ffmpegCalls++
		outputPath := spec.Args[len(spec.Args)-1]
		size := f.ffmpegOutputSize
		if size <= 0 {
			size = 1024
		}
		if err := os.WriteFile(outputPath, make([]byte, size), 0o644); err != nil {
			return util.CmdResult{Code: -1, Err: err}, err
		}
		for _, l := range f.ffmpegLines {
			if spec.StderrLine != nil {
				spec.StderrLine(l)
			}
		}
		if f.ffmpegExit != 0 {
			err := errors.New("exit status")
			return util.CmdResult{Code: f.ffmpegExit, Stderr: []byte("Conversion failed!"), Err: err}, err
		}
		return util.CmdResult{}, nil
	}
	return util.CmdResult{}, errors.New("unexpected tool path: " + spec.Path)
}

func probeJSON(duration string) string {
	return `{"streams":[{"codec_type":"audio","codec_name":"aac","channels":2,"sample_rate":"44100"}],` +
		`"format":{"duration":"` + duration + `","bit_rate":"128000","format_name":"mov,mp4,m4a,3gp,3g2,mj2"}}`
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "lecture.mp4")
	if err := os.WriteFile(p, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// ---------- Tests ----------

func TestNewService_WithOptions(t *testing.T) {
	r := &fakeRunner{}
	rep := &recordingReporter{}

	s := NewService(
		WithFFmpegPath("/usr/local/bin/ffmpeg"),
		WithFFprobePath("/usr/local/bin/ffprobe"),
		WithOptions(model.JobOptions{OutDir: "out", TargetSizeMB: 75, Profile: model.ProfileMP3}),
		WithRunner(r),
		WithReporter(rep),
		WithJobID("job-1"),
	)

	if s.ffmpegPath != "/usr/local/bin/ffmpeg" || s.ffprobePath != "/usr/local/bin/ffprobe" {
		t.Errorf("paths = %q, %q", s.ffmpegPath, s.ffprobePath)
	}
	if s.opts.OutDir != "out" || s.opts.TargetSizeMB != 75 || s.opts.Profile != model.ProfileMP3 {
		t.Errorf("opts not set correctly: %+v", s.opts)
	}
	if s.reporter == nil || s.jobID != "job-1" {
		t.Errorf("reporter/jobID not set")
	}

	// Defaults when nothing is provided
	s2 := NewService()
	o := s2.Options()
	if o.TargetSizeMB != DefaultTargetSizeMB || o.Margin != 0.9 || o.MinKbps != 12 || o.MaxKbps != 64 {
		t.Errorf("defaults = %+v", o)
	}
	if o.Profile != model.ProfileM4A || o.Channels != 1 || o.SampleRateHz != 16000 || o.Suffix != "_downsized" {
		t.Errorf("defaults = %+v", o)
	}
	if s2.runner == nil || s2.log == nil {
		t.Error("runner/logger defaults not set")
	}
}

func TestCheckOvershoot(t *testing.T) {
	s := NewService(WithOptions(model.JobOptions{TargetSizeMB: 50}))
	// Below threshold
	o, r := s.checkOvershoot(54 * 1024 * 1024)
	if o {
		t.Errorf("expected no overshoot, got true (ratio=%.2f)", r)
	}
	// Exactly at 10% over (55MB) should be false (strict >1.10)
	o, r = s.checkOvershoot(55 * 1024 * 1024)
	if o {
		t.Errorf("expected no overshoot at exact 10%%, got true (ratio=%.2f)", r)
	}
	// Above threshold
	o, r = s.checkOvershoot(56 * 1024 * 1024)
	if !o {
		t.Errorf("expected overshoot, got false (ratio=%.2f)", r)
	}
}

func TestRunJob_DryRun_Reporter(t *testing.T) {
	tmp := t.TempDir()
	rep := &recordingReporter{}
	fr := &fakeRunner{probeJSON: probeJSON("3600.0")}

	s := NewService(
		WithFFprobePath(ffprobePath),
		WithOptions(model.JobOptions{OutDir: tmp, DryRun: true}),
		WithRunner(fr),
		WithReporter(rep),
		WithJobID("job-1"),
	)

	res, err := s.RunJob(context.Background(), writeInput(t, tmp))
	if err != nil {
		t.Fatalf("RunJob (dry-run) error: %v", err)
	}
	if !res.Planned {
		t.Fatalf("expected Planned")
	}
	if res.Plan.Settings.BitrateKbps != 64 {
		t.Errorf("bitrate = %d, want 64", res.Plan.Settings.BitrateKbps)
	}
	if fr.ffmpegCalls != 0 {
		t.Errorf("ffmpeg ran during dry-run")
	}
	last := rep.updates[len(rep.updates)-1]
	if last.Stage != progress.StageCompleted || !strings.Contains(last.Message, "Planned:") {
		t.Errorf("final update = %+v, want StageCompleted with Planned", last)
	}
	if last.JobID != "job-1" {
		t.Errorf("JobID = %q", last.JobID)
	}
	if len(rep.results) != 1 || rep.results[0].Err != nil {
		t.Errorf("expected one success result, got %+v", rep.results)
	}
}

func TestRunJob_MissingPaths(t *testing.T) {
	rep := &recordingReporter{}
	s1 := NewService(WithOptions(model.JobOptions{DryRun: false}), WithFFprobePath(ffprobePath), WithReporter(rep))
	_, err := s1.RunJob(context.Background(), "in.mp4")
	if err == nil || !strings.Contains(err.Error(), "ffmpeg path is required") {
		t.Errorf("expected ffmpeg path error, got %v", err)
	}
	if results := rep.results; len(results) != 1 || results[0].Err == nil {
		t.Errorf("reporter results = %+v, want one failed result", results)
	}

	s2 := NewService(WithOptions(model.JobOptions{DryRun: true}))
	_, err = s2.RunJob(context.Background(), "in.mp4")
	if err == nil || !strings.Contains(err.Error(), "ffprobe path is required") {
		t.Errorf("expected ffprobe path error, got %v", err)
	}
}

func TestRunJob_EncodeAndReporter(t *testing.T) {
	tmp := t.TempDir()
	outDir := filepath.Join(tmp, "out")
	rep := &recordingReporter{}
	fr := &fakeRunner{
		probeJSON:        probeJSON("100.0"),
		ffmpegLines:      []string{"size=1kB time=00:00:10.00 bitrate=64k", "time=00:00:55.50"},
		ffmpegOutputSize: 800 * 1024,
	}

	s := NewService(
		WithFFprobePath(ffprobePath),
		WithFFmpegPath(ffmpegPath),
		WithOptions(model.JobOptions{OutDir: outDir, TargetSizeMB: 80}),
		WithRunner(fr),
		WithReporter(rep),
		WithJobID("job-2"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input := writeInput(t, tmp)
	res, err := s.RunJob(ctx, input)
	if err != nil {
		t.Fatalf("RunJob encode error: %v", err)
	}
	if res.Output == nil {
		t.Fatalf("expected Output on success")
	}
	if want := filepath.Join(outDir, "lecture_downsized.m4a"); res.Output.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", res.Output.OutputPath, want)
	}
	if res.Output.Bytes != 800*1024 || res.Overshot {
		t.Errorf("output = %+v, overshot=%v", res.Output, res.Overshot)
	}
	if !res.Transcode.Succeeded {
		t.Errorf("Transcode = %+v", res.Transcode)
	}
	if res.InputDeleted {
		t.Error("input deleted without DeleteInput")
	}
	if _, err := os.Stat(input); err != nil {
		t.Errorf("input removed: %v", err)
	}

	var stages []progress.Stage
	var percents []float64
	for _, u := range rep.updates {
		stages = append(stages, u.Stage)
		if u.Stage == progress.StageEncoding {
			percents = append(percents, u.Percent)
		}
	}
	if stages[0] != progress.StageProbing {
		t.Errorf("first stage = %v, want probing", stages[0])
	}
	want := []float64{10, 55.5, 100}
	if len(percents) != len(want) {
		t.Fatalf("encoding percents = %v, want %v", percents, want)
	}
	for i := range want {
		if diff := percents[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("percent[%d] = %v, want %v", i, percents[i], want[i])
		}
	}
	lastU := rep.updates[len(rep.updates)-1]
	if lastU.Stage != progress.StageCompleted || !strings.Contains(lastU.Message, "Saved:") {
		t.Errorf("final update = %+v, want StageCompleted with Saved", lastU)
	}
	if len(rep.results) != 1 || rep.results[0].Err != nil || rep.results[0].Bytes != 800*1024 {
		t.Errorf("expected success result, got %+v", rep.results)
	}
}

func TestRunJob_DeleteInputOnlyAfterSuccess(t *testing.T) {
	tests := []struct {
		name       string
		exit       int
		wantExists bool
	}{
		{name: "success deletes", exit: 0, wantExists: false},
		{name: "failure keeps", exit: 1, wantExists: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			input := writeInput(t, tmp)
			s := NewService(
				WithFFprobePath(ffprobePath),
				WithFFmpegPath(ffmpegPath),
				WithOptions(model.JobOptions{OutDir: tmp, DeleteInput: true}),
				WithRunner(&fakeRunner{probeJSON: probeJSON("60"), ffmpegExit: tt.exit}),
			)
			res, _ := s.RunJob(context.Background(), input)
			_, err := os.Stat(input)
			if exists := err == nil; exists != tt.wantExists {
				t.Errorf("input exists = %v, want %v", exists, tt.wantExists)
			}
			if res.InputDeleted == tt.wantExists {
				t.Errorf("InputDeleted = %v", res.InputDeleted)
			}
		})
	}
}

func TestRunJob_ProbeFailure(t *testing.T) {
	rep := &recordingReporter{}
	fr := &fakeRunner{}
	s := NewService(
		WithFFprobePath(ffprobePath),
		WithFFmpegPath(ffmpegPath),
		WithRunner(fr),
		WithReporter(rep),
	)

	_, err := s.RunJob(context.Background(), "broken.mp4")
	if KindOf(err) != KindProbe {
		t.Fatalf("KindOf(%v) = %q, want probe", err, KindOf(err))
	}
	var pe *prober.ProbeError
	if !errors.As(err, &pe) {
		t.Errorf("error %v does not wrap *prober.ProbeError", err)
	}
	if fr.ffmpegCalls != 0 {
		t.Error("ffmpeg ran after failed probe")
	}
	if len(rep.results) != 1 || rep.results[0].Err == nil {
		t.Errorf("results = %+v, want one failure", rep.results)
	}
	if last := rep.updates[len(rep.updates)-1]; last.Stage != progress.StageError {
		t.Errorf("final stage = %v, want error", last.Stage)
	}
}

func TestRunJob_SameStemInputsGetDistinctOutputs(t *testing.T) {
	tmp := t.TempDir()
	var inputs []string
	for _, name := range []string{"talk.wav", "talk.mp4"} {
		p := filepath.Join(tmp, name)
		if err := os.WriteFile(p, []byte("source"), 0o644); err != nil {
			t.Fatal(err)
		}
		inputs = append(inputs, p)
	}
	namer := media.NewNamer("", media.DefaultSuffix, model.ProfileM4A)
	if err := namer.Reserve(inputs...); err != nil {
		t.Fatal(err)
	}

	outputs := make(map[string]bool)
	for _, in := range inputs {
		s := NewService(
			WithFFprobePath(ffprobePath),
			WithFFmpegPath(ffmpegPath),
			WithRunner(&fakeRunner{probeJSON: probeJSON("60")}),
			WithOutputNamer(namer),
		)
		res, err := s.RunJob(context.Background(), in)
		if err != nil {
			t.Fatalf("RunJob(%s) error = %v", in, err)
		}
		outputs[res.Output.OutputPath] = true
	}
	for _, want := range []string{"talk_wav_downsized.m4a", "talk_mp4_downsized.m4a"} {
		if !outputs[filepath.Join(tmp, want)] {
			t.Errorf("outputs = %v, missing %s", outputs, want)
		}
	}
}

func TestPlan_OutputNamerError(t *testing.T) {
	s := NewService(
		WithFFprobePath(ffprobePath),
		WithRunner(&fakeRunner{probeJSON: probeJSON("60")}),
		WithOutputNamer(OutputFunc(func(string) (string, error) { return "", errors.New("taken") })),
	)
	if _, err := s.Plan(context.Background(), "/in/a.wav"); err == nil || !strings.Contains(err.Error(), "taken") {
		t.Errorf("Plan() error = %v, want namer error", err)
	}
}

func TestRunJob_TranscodeFailure(t *testing.T) {
	tmp := t.TempDir()
	s := NewService(
		WithFFprobePath(ffprobePath),
		WithFFmpegPath(ffmpegPath),
		WithOptions(model.JobOptions{OutDir: tmp}),
		WithRunner(&fakeRunner{probeJSON: probeJSON("60"), ffmpegExit: 1}),
	)

	res, err := s.RunJob(context.Background(), writeInput(t, tmp))
	if KindOf(err) != KindTranscode {
		t.Fatalf("KindOf(%v) = %q, want transcode", err, KindOf(err))
	}
	var perr *encoder.ProcessError
	if !errors.As(err, &perr) || perr.Code != 1 {
		t.Errorf("error = %v, want ProcessError with code 1", err)
	}
	if res.Output != nil {
		t.Error("Output set after failed transcode")
	}
	if res.Transcode.Succeeded || res.Transcode.ExitCode != 1 {
		t.Errorf("Transcode = %+v", res.Transcode)
	}
	if _, err := os.Stat(filepath.Join(tmp, "lecture_downsized.m4a")); !os.IsNotExist(err) {
		t.Errorf("partial output left behind, stat err = %v", err)
	}
}

func TestRunJob_ManualBitrateWarnsWhenOverTarget(t *testing.T) {
	tmp := t.TempDir()
	rep := &recordingReporter{}
	s := NewService(
		WithFFprobePath(ffprobePath),
		WithOptions(model.JobOptions{OutDir: tmp, DryRun: true, BitrateKbps: 192, TargetSizeMB: 80}),
		WithRunner(&fakeRunner{probeJSON: probeJSON("7200")}),
		WithReporter(rep),
	)

	res, err := s.RunJob(context.Background(), writeInput(t, tmp))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Plan.Manual || !res.Plan.ExceedsTarget {
		t.Errorf("plan = %+v, want manual and exceeding target", res.Plan)
	}
	if len(rep.logs) == 0 || !strings.Contains(rep.logs[0].Line, "above the 80 MB target") {
		t.Errorf("logs = %+v, want overshoot warning", rep.logs)
	}
}
