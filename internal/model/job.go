package model

import (
	"fmt"
	"strings"
)

// CodecProfile selects the output codec and container.
type CodecProfile string

const (
	ProfileM4A CodecProfile = "m4a" // AAC in an MP4 audio container
	ProfileMP3 CodecProfile = "mp3" // MPEG-1 Layer III via libmp3lame
)

// ParseCodecProfile accepts "m4a"/"aac" and "mp3" (case-insensitive).
func ParseCodecProfile(s string) (CodecProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m4a", "aac":
		return ProfileM4A, nil
	case "mp3":
		return ProfileMP3, nil
	default:
		return "", fmt.Errorf("unknown codec profile %q (valid: m4a|mp3)", s)
	}
}

// Codec returns the ffmpeg encoder name for the profile.
func (p CodecProfile) Codec() string {
	if p == ProfileMP3 {
		return "libmp3lame"
	}
	return "aac"
}

// Extension returns the output file extension including the dot.
func (p CodecProfile) Extension() string {
	if p == ProfileMP3 {
		return ".mp3"
	}
	return ".m4a"
}

// MIMEType returns the content type served for artifacts of this profile.
func (p CodecProfile) MIMEType() string {
	if p == ProfileMP3 {
		return "audio/mpeg"
	}
	return "audio/mp4"
}

// DefaultSampleRateHz is the sample rate used by every shipped configuration.
const DefaultSampleRateHz = 16000

// MediaInfo is the result of a single successful probe.
type MediaInfo struct {
	DurationSec       float64 // always > 0
	ContainerFormat   string  // "unknown" when not reported
	AudioCodec        string  // "unknown" when not reported
	Channels          int
	SampleRateHz      int
	OverallBitrateBps int
}

// TranscodeSettings fully describes one encode attempt.
type TranscodeSettings struct {
	Profile      CodecProfile
	Channels     int // 1 or 2
	SampleRateHz int
	BitrateKbps  int
}

// Validate reports settings the encoder cannot honour.
func (s TranscodeSettings) Validate() error {
	if s.Profile != ProfileM4A && s.Profile != ProfileMP3 {
		return fmt.Errorf("unknown codec profile %q", s.Profile)
	}
	if s.Channels != 1 && s.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", s.Channels)
	}
	if s.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", s.SampleRateHz)
	}
	if s.BitrateKbps <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", s.BitrateKbps)
	}
	return nil
}

// ProgressEvent is emitted for every time-position token the encoder prints.
// Fraction is non-decreasing within a run and never exceeds 1.0.
type ProgressEvent struct {
	Fraction       float64
	PositionSec    float64 // position carried by this line
	ElapsedWallSec float64
	Speed          string // encoder speed token, e.g. "41.2x"; empty when not reported
}

// TranscodeResult is produced exactly once per run, after the encoder exits.
type TranscodeResult struct {
	Succeeded  bool
	ExitCode   int
	ElapsedSec float64
	OutputPath string
}

// JobOptions holds user-configurable runtime options as resolved from
// flags, environment and config file.
type JobOptions struct {
	OutDir       string
	TargetSizeMB float64 // upper bound for the artifact
	Margin       float64 // fraction of the target actually budgeted, (0,1]
	MinKbps      int
	MaxKbps      int
	Profile      CodecProfile
	Channels     int
	SampleRateHz int
	BitrateKbps  int    // >0 overrides the solver
	Suffix       string // appended to the input base name
	DeleteInput  bool
	DryRun       bool
	Verbose      bool

	FFmpegBinary  string // optional explicit ffmpeg path
	FFprobeBinary string // optional explicit ffprobe path

	NoUI bool // Disable TUI when true
	Jobs int  // Max concurrent jobs for TUI and HTTP service
}

// OutputAudio captures the finished artifact.
type OutputAudio struct {
	OutputPath  string
	Bytes       int64
	BitrateKbps int
	Profile     CodecProfile
	ElapsedSec  float64
}
