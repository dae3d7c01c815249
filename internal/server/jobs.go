package server

import (
	"sync"
	"time"

	"voxtrim/internal/model"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/progress"
)

// Job states reported by GET /api/jobs/{id}.
const (
	StateQueued   = "queued"
	StateProbing  = "probing"
	StateEncoding = "encoding"
	StateDone     = "done"
	StateFailed   = "failed"
)

// JobStatus is the JSON view of a job.
type JobStatus struct {
	ID              string  `json:"id"`
	State           string  `json:"state"`
	Fraction        float64 `json:"fraction"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	BitrateKbps     int     `json:"bitrate_kbps,omitempty"`
	OutputBytes     int64   `json:"output_bytes,omitempty"`
	Error           string  `json:"error,omitempty"`
	ErrorKind       string  `json:"error_kind,omitempty"`
}

// job tracks one upload. It implements progress.Reporter so the pipeline
// can publish into it directly.
type job struct {
	mu sync.RWMutex

	id         string
	filename   string // original upload name
	profile    model.CodecProfile
	created    time.Time
	outputPath string
	status     JobStatus
	changed    chan struct{} // closed and replaced on every status change
}

func newJob(id, filename string, profile model.CodecProfile, now time.Time) *job {
	return &job{
		id:       id,
		filename: filename,
		profile:  profile,
		created:  now,
		status:   JobStatus{ID: id, State: StateQueued},
		changed:  make(chan struct{}),
	}
}

// notifyLocked wakes every watcher. j.mu must be held for writing.
func (j *job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}

// watch returns the current status and a channel closed on the next change.
func (j *job) watch() (JobStatus, <-chan struct{}) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status, j.changed
}

func finished(state string) bool {
	return state == StateDone || state == StateFailed
}

func (j *job) Update(u progress.Update) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.notifyLocked()
	switch u.Stage {
	case progress.StageProbing:
		j.status.State = StateProbing
	case progress.StageEncoding:
		j.status.State = StateEncoding
		if f := u.Percent / 100; f > j.status.Fraction {
			j.status.Fraction = f
		}
		j.status.PositionSeconds = u.Position
		j.status.ElapsedSeconds = u.Elapsed.Seconds()
	}
	if u.DurationSec > 0 {
		j.status.DurationSeconds = u.DurationSec
	}
	if u.BitrateKbps > 0 {
		j.status.BitrateKbps = u.BitrateKbps
	}
}

func (j *job) Log(progress.Log) {}

func (j *job) Result(r progress.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.notifyLocked()
	if r.Err != nil {
		j.status.State = StateFailed
		j.status.Error = r.Err.Error()
		j.status.ErrorKind = string(pipeline.KindOf(r.Err))
		return
	}
	j.status.State = StateDone
	j.status.Fraction = 1
	j.status.OutputBytes = r.Bytes
	j.outputPath = r.OutputPath
}

// fail records an error that never reached the pipeline's reporter.
func (j *job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.State == StateFailed {
		return
	}
	defer j.notifyLocked()
	j.status.State = StateFailed
	j.status.Error = err.Error()
	j.status.ErrorKind = string(pipeline.KindOf(err))
}

func (j *job) snapshot() (JobStatus, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status, j.outputPath
}

// jobTable is the in-memory registry of jobs for this process.
type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*job)}
}

func (t *jobTable) add(j *job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[j.id] = j
}

func (t *jobTable) get(id string) (*job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	return j, ok
}

// expire drops finished jobs created before cutoff and returns their ids.
func (t *jobTable) expire(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, j := range t.jobs {
		st, _ := j.snapshot()
		if finished(st.State) && j.created.Before(cutoff) {
			delete(t.jobs, id)
			ids = append(ids, id)
		}
	}
	return ids
}
