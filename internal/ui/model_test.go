package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voxtrim/internal/model"
	"voxtrim/internal/progress"
	"voxtrim/internal/util"
)

const (
	ffprobePath = "/fake/ffprobe"
	ffmpegPath  = "/fake/ffmpeg"
)

// fakeTools simulates ffprobe and ffmpeg and records peak ffmpeg concurrency.
type fakeTools struct {
	failProbeFor string

	mu      sync.Mutex
	active  int
	peak    int
	encodes int
}

func (f *fakeTools) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	switch spec.Path {
	case ffprobePath:
		if f.failProbeFor != "" && spec.Args[len(spec.Args)-1] == f.failProbeFor {
			err := errors.New("exit status 1")
			return util.CmdResult{Code: 1, Err: err}, err
		}
		return util.CmdResult{Stdout: []byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"60.0"}}`)}, nil
	case ffmpegPath:
		f.mu.Lock()
		f.active++
		f.encodes++
		if f.active > f.peak {
			f.peak = f.active
		}
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.active--
			f.mu.Unlock()
		}()

		time.Sleep(10 * time.Millisecond)
		if spec.StderrLine != nil {
			spec.StderrLine("size=1kB time=00:00:30.00 bitrate=48k speed=40x")
		}
		out := spec.Args[len(spec.Args)-1]
		if err := os.WriteFile(out, make([]byte, 2048), 0o644); err != nil {
			return util.CmdResult{Code: -1, Err: err}, err
		}
		return util.CmdResult{}, nil
	}
	return util.CmdResult{}, errors.New("unexpected binary " + spec.Path)
}

// drive feeds every event into the model until the dispatcher reports done.
func drive(t *testing.T, m Model) Model {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-m.eventCh:
			next, _ := m.Update(msg)
			m = next.(Model)
			if _, ok := msg.(allDoneMsg); ok {
				return m
			}
		case <-deadline:
			t.Fatal("timed out waiting for jobs")
		}
	}
}

func TestModelUpdate_EncodingThenSaved(t *testing.T) {
	m := NewModel(context.Background(), []string{"/in/lecture.mp4"}, Options{})
	defer m.cancel()
	id := m.jobOrder[0]

	next, _ := m.Update(jobUpdateMsg{U: progress.Update{
		JobID: id, Stage: progress.StageEncoding, Percent: 42, Position: 83.45,
		Elapsed: 12 * time.Second, BitrateKbps: 64,
	}})
	m = next.(Model)
	js := m.jobs[id]
	if js.status != "Encoding… 42% (00:01:23.45) 12s elapsed" {
		t.Errorf("status = %q", js.status)
	}
	if js.bitrateKbps != 64 {
		t.Errorf("bitrateKbps = %d, want 64", js.bitrateKbps)
	}

	next, _ = m.Update(jobLogMsg{L: progress.Log{JobID: id, Line: "warning: 64k over 3h 0m 0s predicts 82.4 MB, above the 80 MB target\n"}})
	m = next.(Model)

	next, _ = m.Update(jobResultMsg{R: progress.Result{JobID: id, OutputPath: "/out/lecture_downsized.m4a", Bytes: 2048, BitrateKbps: 64}})
	m = next.(Model)
	if !js.done || js.stage != progress.StageCompleted || js.percent != 100 {
		t.Errorf("job after result = %+v", js)
	}
	if js.status != "Saved: lecture_downsized.m4a (2.0 KB)" {
		t.Errorf("status = %q", js.status)
	}

	// Late progress must not reopen a finished job.
	next, _ = m.Update(jobUpdateMsg{U: progress.Update{JobID: id, Stage: progress.StageEncoding, Percent: 50}})
	m = next.(Model)
	if js.stage != progress.StageCompleted {
		t.Errorf("stage = %s after late update", js.stage)
	}

	view := m.View()
	for _, want := range []string{"lecture.mp4", "Completed Files", "/out/lecture_downsized.m4a", "warning: 64k"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModelUpdate_OnlyEventsRearmListener(t *testing.T) {
	m := NewModel(context.Background(), []string{"/in/a.mp4"}, Options{})
	defer m.cancel()

	for i := 0; i < 500; i++ {
		var msg tea.Msg = tea.WindowSizeMsg{Width: 80 + i%3, Height: 24}
		if i%2 == 1 {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}
		}
		next, cmd := m.Update(msg)
		m = next.(Model)
		if cmd != nil {
			t.Fatalf("Update(%T) returned a command; only event messages may re-arm the listener", msg)
		}
	}
}

func TestModelUpdate_EventsKeepSendOrder(t *testing.T) {
	m := NewModel(context.Background(), []string{"/in/a.mp4"}, Options{})
	defer m.cancel()
	id := m.jobOrder[0]

	const n = 150
	for i := 0; i < n; i++ {
		m.eventCh <- jobLogMsg{L: progress.Log{JobID: id, Line: fmt.Sprintf("line %d", i)}}
	}

	listen := m.listenEventsCmd()
	for i := 0; i < n; i++ {
		next, cmd := m.Update(listen())
		m = next.(Model)
		if cmd == nil {
			t.Fatalf("event %d: listener not re-armed", i)
		}
		batch, ok := cmd().(tea.BatchMsg)
		if !ok || len(batch) != 1 {
			t.Fatalf("event %d: got %d commands, want exactly one listener", i, len(batch))
		}
		listen = batch[0]
	}

	logs := m.jobs[id].logsRing
	if len(logs) != n {
		t.Fatalf("len(logs) = %d, want %d", len(logs), n)
	}
	for i, l := range logs {
		if want := fmt.Sprintf("line %d", i); l != want {
			t.Fatalf("logs[%d] = %q, want %q", i, l, want)
		}
	}
}

func TestModelUpdate_AllDoneQuits(t *testing.T) {
	m := NewModel(context.Background(), nil, Options{})
	defer m.cancel()
	next, cmd := m.Update(allDoneMsg{})
	if !next.(Model).finished {
		t.Error("finished = false after allDoneMsg")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("cmd() = %T, want tea.QuitMsg", cmd())
	}
}

func TestDispatch_BoundedConcurrency(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4"} {
		files = append(files, filepath.Join(dir, name))
	}
	tools := &fakeTools{}
	m := NewModel(context.Background(), files, Options{
		Job:         model.JobOptions{OutDir: filepath.Join(dir, "out"), Jobs: 2},
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Runner:      tools,
	})
	defer m.cancel()

	m.start()
	m = drive(t, m)
	m.wait()

	if errs := m.failures(); len(errs) != 0 {
		t.Fatalf("failures = %v", errs)
	}
	if tools.encodes != len(files) {
		t.Errorf("encodes = %d, want %d", tools.encodes, len(files))
	}
	if tools.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", tools.peak)
	}
	for _, id := range m.jobOrder {
		js := m.jobs[id]
		if !js.done || js.outputPath == "" {
			t.Errorf("job %s not completed: %+v", js.file, js)
		}
	}
}

func TestDispatch_ReportsFailuresPerFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.mp4")
	good := filepath.Join(dir, "fine.mp4")
	m := NewModel(context.Background(), []string{bad, good}, Options{
		Job:         model.JobOptions{OutDir: dir},
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Runner:      &fakeTools{failProbeFor: bad},
	})
	defer m.cancel()

	m.start()
	m = drive(t, m)
	m.wait()

	errs := m.failures()
	if len(errs) != 1 {
		t.Fatalf("failures = %v, want 1", errs)
	}
	if !strings.HasPrefix(errs[0].Error(), bad+": ") {
		t.Errorf("failure = %q, want it prefixed with the file", errs[0])
	}
	if m.jobs[m.jobOrder[0]].stage != progress.StageError {
		t.Errorf("stage = %s, want error", m.jobs[m.jobOrder[0]].stage)
	}
}

func TestTeaReporter_DropsProgressWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan tea.Msg, 1)
	r := teaReporter{ctx: ctx, ch: ch}

	r.Update(progress.Update{Stage: progress.StageEncoding})
	r.Update(progress.Update{Stage: progress.StageEncoding}) // dropped, channel full
	r.Log(progress.Log{Line: "x"})                          // dropped
	if len(ch) != 1 {
		t.Fatalf("len(ch) = %d, want 1", len(ch))
	}

	// Results block until delivered or cancelled.
	done := make(chan struct{})
	go func() {
		r.Result(progress.Result{JobID: "j"})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Result returned while channel was full")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Result still blocked after cancel")
	}
}
