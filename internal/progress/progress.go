// Package progress defines the events a running job publishes to whatever
// is presenting it: the text printer, the TUI or the HTTP job table.
package progress

import (
	"fmt"
	"time"

	"voxtrim/internal/util/format"
)

// Stage identifies a high-level step in the pipeline.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageProbing   Stage = "probing"
	StageEncoding  Stage = "encoding"
	StageCompleted Stage = "completed"
	StageError     Stage = "error"
)

// LogStream indicates which stream produced a log line.
type LogStream int

const (
	StreamStdout LogStream = iota
	StreamStderr
)

// Update conveys progress or stage changes for a job.
// Percent is 0..100 when known; set to a negative value (e.g., -1) to mean unknown.
type Update struct {
	JobID   string
	Stage   Stage
	Percent float64 // 0..100, or <0 if unknown

	Position    float64       // encoder position in seconds
	DurationSec float64       // probed source duration, when known
	Elapsed     time.Duration // wall time since the encoder started
	BitrateKbps int           // chosen bitrate, once planned
	Speed       string        // encoder speed, e.g. "41.2x"; empty when unknown
	Message     string        // short human-friendly status line
}

// Status renders u as a one-line status, e.g.
// "Encoding… 42% (00:01:23.45) 12s elapsed, 41.2x". Updates without a
// known encoder position fall back to Message.
func (u Update) Status() string {
	if u.Stage != StageEncoding || u.Percent < 0 {
		return u.Message
	}
	tc := format.Timecode(u.Position)
	tc = tc[:len(tc)-4] // hundredths are enough on screen
	s := fmt.Sprintf("Encoding… %.0f%% (%s) %s elapsed", u.Percent, tc, format.DurationHuman(u.Elapsed.Seconds()))
	if u.Speed != "" {
		s += ", " + u.Speed
	}
	return s
}

// Log is a structured log line associated with a job.
type Log struct {
	JobID  string
	Stream LogStream
	Line   string
}

// Result is emitted once per job when it completes or fails.
type Result struct {
	JobID       string
	OutputPath  string
	Bytes       int64
	BitrateKbps int
	Err         error // nil on success
}

// Reporter is implemented by UI or any observer interested in progress events.
type Reporter interface {
	Update(u Update)
	Log(l Log)
	Result(r Result)
}
