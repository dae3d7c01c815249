package encoder

import (
	"regexp"
	"time"

	"voxtrim/internal/model"
	"voxtrim/internal/util/format"
)

var (
	timeRe  = regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}\.\d+)`)
	speedRe = regexp.MustCompile(`speed=\s*([0-9.]+x)`)
)

// ParseProgressLine extracts the encoder position in seconds from a stats
// line. ok is false for lines without a time= token.
func ParseProgressLine(line string) (positionSec float64, ok bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return format.ParseTimecode(m[1]), true
}

// ParseSpeed returns the speed= token (e.g. "41.2x") or "".
func ParseSpeed(line string) string {
	m := speedRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// Tracker turns stats lines into ProgressEvents for one run. Emitted
// fractions are clamped to [0,1] and never decrease.
type Tracker struct {
	DurationSec float64

	fraction float64
	position float64 // last parsed position
}

// NewTracker returns a Tracker normalising against durationSec.
func NewTracker(durationSec float64) *Tracker {
	return &Tracker{DurationSec: durationSec}
}

// Observe parses line and, when it carries a position, returns the event to
// emit. elapsed is wall time since the encoder was launched.
func (t *Tracker) Observe(line string, elapsed time.Duration) (model.ProgressEvent, bool) {
	pos, ok := ParseProgressLine(line)
	if !ok {
		return model.ProgressEvent{}, false
	}
	frac := 0.0
	if t.DurationSec > 0 {
		frac = pos / t.DurationSec
	}
	if frac > 1 {
		frac = 1
	}
	if frac > t.fraction {
		t.fraction = frac
	}
	t.position = pos
	return model.ProgressEvent{
		Fraction:       t.fraction,
		PositionSec:    pos,
		ElapsedWallSec: elapsed.Seconds(),
		Speed:          ParseSpeed(line),
	}, true
}

// Finish returns the completion event emitted after a clean exit.
func (t *Tracker) Finish(elapsed time.Duration) model.ProgressEvent {
	t.fraction = 1
	if t.DurationSec > 0 {
		t.position = t.DurationSec
	}
	return model.ProgressEvent{
		Fraction:       1,
		PositionSec:    t.position,
		ElapsedWallSec: elapsed.Seconds(),
	}
}

// Fraction reports the highest fraction emitted so far.
func (t *Tracker) Fraction() float64 { return t.fraction }
