// Package format renders sizes, durations and ffmpeg timecodes.
package format

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// HumanizeBytes renders b in binary units with one decimal, e.g. "1.5 MB".
// Counts below 1 KB are printed exactly.
func HumanizeBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[i])
}

// BytesToMB converts a byte count into binary megabytes.
func BytesToMB(b int64) float64 {
	return float64(b) / (1024 * 1024)
}
