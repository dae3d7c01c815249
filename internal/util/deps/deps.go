// Package deps locates the external ffmpeg and ffprobe binaries.
package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNotFound is wrapped by every lookup failure so callers can map it to a
// dedicated exit code.
var ErrNotFound = errors.New("binary not found")

// FindFFmpeg returns the path to ffmpeg.
// If customPath is non-empty, it tries that path or looks it up in PATH.
func FindFFmpeg(customPath string) (string, error) {
	return find(customPath, "ffmpeg")
}

// FindFFprobe returns the path to ffprobe, resolved like FindFFmpeg.
func FindFFprobe(customPath string) (string, error) {
	return find(customPath, "ffprobe")
}

func find(customPath, name string) (string, error) {
	if customPath != "" {
		if fi, err := os.Stat(customPath); err == nil && !fi.IsDir() {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find %s at %q: %w", name, customPath, ErrNotFound)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("could not find %s in PATH, please install ffmpeg: %w", name, ErrNotFound)
}
