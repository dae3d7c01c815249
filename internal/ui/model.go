package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"voxtrim/internal/model"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/progress"
	"voxtrim/internal/util"
	"voxtrim/internal/util/format"
)

// Options configure a TUI session.
type Options struct {
	Job         model.JobOptions
	FFmpegPath  string
	FFprobePath string
	Runner      util.CmdRunner       // nil uses the exec runner
	Outputs     pipeline.OutputNamer // nil keeps the default artifact names
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	files    []string
	opts     Options
	jobOrder []string
	jobs     map[string]*jobState
	workers  int
	finished bool

	width, height int
	styles        Styles

	// Reporter events from worker goroutines, consumed one at a time.
	eventCh chan tea.Msg
}

func NewModel(ctx context.Context, files []string, opts Options) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()

	// The TUI owns the terminal; ffmpeg output goes to the per-job log ring.
	opts.Job.Verbose = false

	jobs := make(map[string]*jobState, len(files))
	order := make([]string, 0, len(files))
	for _, f := range files {
		id := uuid.NewString()
		jobs[id] = newJobState(id, f, sty)
		order = append(order, id)
	}

	workers := opts.Job.Jobs
	if workers <= 0 {
		workers = 2
	}

	return Model{
		ctx:      c,
		cancel:   cancel,
		wg:       &sync.WaitGroup{},
		files:    files,
		opts:     opts,
		jobs:     jobs,
		jobOrder: order,
		workers:  workers,
		styles:   sty,
		eventCh:  make(chan tea.Msg, 256),
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, id := range m.jobOrder {
		cmds = append(cmds, m.jobs[id].spinner.Tick)
	}
	cmds = append(cmds, m.listenEventsCmd())
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Exactly one listener reads eventCh at a time; it is re-armed only
	// after the message it delivered, so events arrive in send order.
	fromEvents := false
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case jobUpdateMsg:
		fromEvents = true
		u := msg.U
		if js, ok := m.jobs[u.JobID]; ok && !js.done {
			js.stage = u.Stage
			js.percent = u.Percent
			js.status = u.Status()
			if u.BitrateKbps > 0 {
				js.bitrateKbps = u.BitrateKbps
			}
		}
	case jobLogMsg:
		fromEvents = true
		if js, ok := m.jobs[msg.L.JobID]; ok {
			js.appendLog(strings.TrimRight(msg.L.Line, "\r\n"))
		}
	case jobResultMsg:
		fromEvents = true
		r := msg.R
		if js, ok := m.jobs[r.JobID]; ok {
			js.done = true
			js.err = r.Err
			if r.Err == nil {
				js.stage = progress.StageCompleted
				js.percent = 100
				js.outputPath = r.OutputPath
				js.bytes = r.Bytes
				js.bitrateKbps = r.BitrateKbps
				js.status = completedStatus(r, m.opts.Job.DryRun)
			} else {
				js.stage = progress.StageError
				js.status = r.Err.Error()
				js.percent = -1
			}
		}
	case allDoneMsg:
		m.finished = true
		return m, tea.Quit
	}

	var cmds []tea.Cmd
	for _, id := range m.jobOrder {
		js := m.jobs[id]
		var c tea.Cmd
		js.spinner, c = js.spinner.Update(msg)
		if c != nil {
			cmds = append(cmds, c)
		}
	}
	if fromEvents {
		cmds = append(cmds, m.listenEventsCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	summary := m.viewSummary()
	if summary != "" {
		return m.viewHeader() + "\n\n" + m.viewJobs() + "\n" + summary
	}
	return m.viewHeader() + "\n\n" + m.viewJobs()
}

func completedStatus(r progress.Result, dryRun bool) string {
	if r.OutputPath == "" {
		return "Completed"
	}
	name := filepath.Base(r.OutputPath)
	if dryRun {
		return fmt.Sprintf("Planned: %s at %dk", name, r.BitrateKbps)
	}
	return fmt.Sprintf("Saved: %s (%s)", name, format.HumanizeBytes(r.Bytes))
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return tea.Quit()
		case msg := <-m.eventCh:
			return msg
		}
	}
}

// start launches the dispatcher. It must be called once, before the
// program runs.
func (m Model) start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatch()
	}()
}

// wait blocks until the dispatcher and every job it launched have returned.
func (m Model) wait() { m.wg.Wait() }

// dispatch runs every file through the pipeline with at most m.workers
// concurrent jobs, then reports allDoneMsg.
func (m Model) dispatch() {
	sem := make(chan struct{}, m.workers)
	var running sync.WaitGroup
	for i, file := range m.files {
		select {
		case sem <- struct{}{}:
		case <-m.ctx.Done():
			running.Wait()
			return
		}
		running.Add(1)
		go func(id, file string) {
			defer running.Done()
			defer func() { <-sem }()
			m.runJob(id, file)
		}(m.jobOrder[i], file)
	}
	running.Wait()
	m.send(allDoneMsg{})
}

func (m Model) runJob(jobID, file string) {
	rep := teaReporter{ctx: m.ctx, ch: m.eventCh}
	opts := []pipeline.Option{
		pipeline.WithFFmpegPath(m.opts.FFmpegPath),
		pipeline.WithFFprobePath(m.opts.FFprobePath),
		pipeline.WithOptions(m.opts.Job),
		pipeline.WithRunner(m.opts.Runner),
		pipeline.WithReporter(rep),
		pipeline.WithJobID(jobID),
	}
	if m.opts.Outputs != nil {
		opts = append(opts, pipeline.WithOutputNamer(m.opts.Outputs))
	}
	svc := pipeline.NewService(opts...)
	// Failures reach the model through rep.Result.
	_, _ = svc.RunJob(m.ctx, file)
}

func (m Model) send(msg tea.Msg) {
	select {
	case m.eventCh <- msg:
	case <-m.ctx.Done():
	}
}

// failures lists the failed jobs in input order.
func (m Model) failures() []error {
	var errs []error
	for _, id := range m.jobOrder {
		if js := m.jobs[id]; js.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", js.file, js.err))
		}
	}
	return errs
}

type teaReporter struct {
	ctx context.Context
	ch  chan tea.Msg
}

func (r teaReporter) Update(u progress.Update) {
	// Terminal stages must arrive; intermediate progress may be dropped.
	if u.Stage == progress.StageCompleted || u.Stage == progress.StageError {
		r.deliver(jobUpdateMsg{U: u})
		return
	}
	select {
	case r.ch <- jobUpdateMsg{U: u}:
	default:
	}
}

func (r teaReporter) Log(l progress.Log) {
	select {
	case r.ch <- jobLogMsg{L: l}:
	default:
	}
}

func (r teaReporter) Result(res progress.Result) {
	r.deliver(jobResultMsg{R: res})
}

func (r teaReporter) deliver(msg tea.Msg) {
	select {
	case r.ch <- msg:
	case <-r.ctx.Done():
	}
}
