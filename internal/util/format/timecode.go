package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseTimecode converts "HH:MM:SS.ffffff" into seconds, preserving the
// fractional part. Malformed input yields 0; it never fails, since a single
// corrupt encoder log line must not abort a run.
func ParseTimecode(s string) float64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 {
		return 0
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return float64(h)*3600 + float64(m)*60 + sec
}

// Timecode renders seconds as "HH:MM:SS.ffffff". Negative values render as zero.
func Timecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	whole := math.Floor(seconds)
	frac := seconds - whole
	total := int64(whole)
	h := total / 3600
	m := (total % 3600) / 60
	s := float64(total%60) + frac
	return fmt.Sprintf("%02d:%02d:%09.6f", h, m, s)
}
