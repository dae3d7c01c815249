// Package bitrate solves for an audio bitrate that keeps an encode under a
// target size.
package bitrate

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultMargin budgets 90% of the target, leaving headroom for container
// overhead and encoder variance.
const DefaultMargin = 0.9

var (
	ErrNonPositiveDuration = errors.New("bitrate: duration must be positive")
	ErrNonPositiveTarget   = errors.New("bitrate: target size must be positive")
	ErrInvalidRange        = errors.New("bitrate: invalid clamp range")
	ErrInvalidMargin       = errors.New("bitrate: margin must be in (0, 1]")
)

// Range bounds the solved bitrate in kbps, inclusive on both ends.
type Range struct {
	MinKbps int
	MaxKbps int
}

// Named clamp policies.
var (
	// RangeVoice suits speech recognition consumers.
	RangeVoice = Range{MinKbps: 12, MaxKbps: 64}
	// RangeGeneral allows higher fidelity for music or mixed content.
	RangeGeneral = Range{MinKbps: 12, MaxKbps: 192}
)

// ParseRange resolves a named policy ("voice", "general").
func ParseRange(name string) (Range, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "voice":
		return RangeVoice, nil
	case "general":
		return RangeGeneral, nil
	default:
		return Range{}, fmt.Errorf("unknown bitrate range %q (valid: voice|general)", name)
	}
}

// Validate reports whether the range can clamp anything.
func (r Range) Validate() error {
	if r.MinKbps <= 0 || r.MaxKbps <= 0 || r.MinKbps > r.MaxKbps {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, r.MinKbps, r.MaxKbps)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d kbps", r.MinKbps, r.MaxKbps)
}

// IdealKbps is the unclamped bitrate that spends margin*target over the
// duration: floor(target*1024*1024*8*margin / duration / 1000).
func IdealKbps(durationSec, targetSizeMB, margin float64) (int, error) {
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return 0, ErrNonPositiveDuration
	}
	if targetSizeMB <= 0 || math.IsNaN(targetSizeMB) {
		return 0, ErrNonPositiveTarget
	}
	if margin <= 0 || margin > 1 || math.IsNaN(margin) {
		return 0, ErrInvalidMargin
	}
	bits := targetSizeMB * 1024 * 1024 * 8 * margin
	return int(math.Floor(bits / durationSec / 1000)), nil
}

// Solve returns IdealKbps clamped to r. Clamping at MinKbps can produce a
// bitrate whose predicted size exceeds the target; very short clips simply
// cannot be encoded below the floor.
func Solve(durationSec, targetSizeMB, margin float64, r Range) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	ideal, err := IdealKbps(durationSec, targetSizeMB, margin)
	if err != nil {
		return 0, err
	}
	return Clamp(ideal, r.MinKbps, r.MaxKbps), nil
}

// PredictedSizeMB estimates the audio payload for kbps over durationSec:
// kbps * duration / 8 / 1024. Container overhead is ignored, so treat the
// value as a lower-bound estimate.
func PredictedSizeMB(kbps int, durationSec float64) float64 {
	if kbps <= 0 || durationSec <= 0 {
		return 0
	}
	return float64(kbps) * durationSec / 8 / 1024
}

// Clamp returns v constrained to [min, max].
func Clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
