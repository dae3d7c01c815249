package prober

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"voxtrim/internal/model"
	"voxtrim/internal/util"
)

// Unknown is reported for string fields ffprobe did not provide.
const Unknown = "unknown"

// ErrInvalidDuration is wrapped by ProbeError when the duration is missing,
// unparsable, zero or negative.
var ErrInvalidDuration = errors.New("invalid duration")

// ProbeError reports a failed probe. No MediaInfo accompanies it.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// result mirrors the subset of `ffprobe -of json` that is requested.
type result struct {
	Streams []stream `json:"streams"`
	Format  format   `json:"format"`
}

type stream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
}

type format struct {
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Prober runs ffprobe through a util.CmdRunner.
type Prober struct {
	binary string
	runner util.CmdRunner
	log    hclog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner replaces the subprocess runner.
func WithRunner(r util.CmdRunner) Option {
	return func(p *Prober) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a Prober for the given ffprobe binary ("ffprobe" when empty).
func New(binary string, opts ...Option) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	p := &Prober{
		binary: binary,
		runner: util.NewDefaultRunner(),
		log:    hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Args returns the ffprobe arguments used by Probe.
func Args(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration,bit_rate,format_name:stream=codec_type,codec_name,channels,sample_rate",
		"-of", "json",
		path,
	}
}

// DurationArgs returns the ffprobe arguments used by ProbeDuration.
func DurationArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// Probe inspects path once. It does not retry.
func (p *Prober) Probe(ctx context.Context, path string) (model.MediaInfo, error) {
	if strings.TrimSpace(path) == "" {
		return model.MediaInfo{}, &ProbeError{Path: path, Err: errors.New("empty path")}
	}
	out, err := p.run(ctx, Args(path))
	if err != nil {
		return model.MediaInfo{}, &ProbeError{Path: path, Err: err}
	}

	info, err := Parse(out)
	if err != nil {
		return model.MediaInfo{}, &ProbeError{Path: path, Err: err}
	}
	p.log.Debug("probed", "input", path, "duration", info.DurationSec, "format", info.ContainerFormat,
		"codec", info.AudioCodec, "channels", info.Channels, "sample_rate", info.SampleRateHz)
	return info, nil
}

// ProbeDuration asks ffprobe for the container duration only, as a bare
// number. The same failure rules as Probe apply.
func (p *Prober) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, &ProbeError{Path: path, Err: errors.New("empty path")}
	}
	out, err := p.run(ctx, DurationArgs(path))
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	d, err := parseDuration(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}
	return d, nil
}

func (p *Prober) run(ctx context.Context, args []string) ([]byte, error) {
	p.log.Trace("running ffprobe", "cmd", util.ShellQuote(p.binary, args))
	res, err := p.runner.Run(ctx, util.CmdSpec{
		Path:          p.binary,
		Args:          args,
		CaptureStdout: true,
	})
	if err != nil {
		if tail := strings.TrimSpace(string(res.Stderr)); tail != "" {
			return nil, fmt.Errorf("%w: %s", err, tail)
		}
		return nil, err
	}
	return res.Stdout, nil
}

// Parse decodes ffprobe JSON into MediaInfo. The first audio stream is used,
// falling back to the first stream of any type.
func Parse(data []byte) (model.MediaInfo, error) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return model.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	dur, err := parseDuration(r.Format.Duration)
	if err != nil {
		return model.MediaInfo{}, err
	}

	info := model.MediaInfo{
		DurationSec:       dur,
		ContainerFormat:   orUnknown(r.Format.FormatName),
		AudioCodec:        Unknown,
		OverallBitrateBps: parseNonNegInt(r.Format.BitRate),
	}
	if s, ok := pickStream(r.Streams); ok {
		info.AudioCodec = orUnknown(s.CodecName)
		if s.Channels > 0 {
			info.Channels = s.Channels
		}
		info.SampleRateHz = parseNonNegInt(s.SampleRate)
	}
	return info, nil
}

func pickStream(streams []stream) (stream, bool) {
	for _, s := range streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return s, true
		}
	}
	if len(streams) > 0 {
		return streams[0], true
	}
	return stream{}, false
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("%w: not reported", ErrInvalidDuration)
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	return d, nil
}

func parseNonNegInt(s string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
