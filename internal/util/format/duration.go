package format

import (
	"math"
	"strconv"
	"strings"
)

// DurationHuman renders a second count as a compact "1h 2m 3s" string.
// Leading zero-valued units are omitted ("2m 3s", "45s"); fractional seconds
// are truncated.
func DurationHuman(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	var parts []string
	if h > 0 {
		parts = append(parts, strconv.FormatInt(h, 10)+"h")
	}
	if h > 0 || m > 0 {
		parts = append(parts, strconv.FormatInt(m, 10)+"m")
	}
	parts = append(parts, strconv.FormatInt(s, 10)+"s")
	return strings.Join(parts, " ")
}
