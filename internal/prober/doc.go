// Package prober reads duration and stream metadata from media files by
// invoking ffprobe. A successful probe always yields a positive duration;
// every other field degrades to zero or "unknown" when ffprobe omits it.
package prober
