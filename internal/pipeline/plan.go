package pipeline

import (
	"voxtrim/internal/model"
	"voxtrim/internal/util/bitrate"
	"voxtrim/internal/util/media"
)

// Default job parameters applied to zero-valued JobOptions fields.
const (
	DefaultTargetSizeMB = 80.0
	DefaultChannels     = 1
)

// Plan is everything decided before ffmpeg starts.
type Plan struct {
	Input      string
	OutputPath string
	Info       model.MediaInfo
	Settings   model.TranscodeSettings

	IdealKbps       int     // solver output before clamping; 0 for manual plans
	Manual          bool    // bitrate supplied by the caller
	PredictedSizeMB float64 // audio payload estimate, container overhead not included
	TargetSizeMB    float64
	ExceedsTarget   bool
}

// WithDefaults fills zero-valued fields of o with the shipped defaults.
func WithDefaults(o model.JobOptions) model.JobOptions {
	if o.TargetSizeMB <= 0 {
		o.TargetSizeMB = DefaultTargetSizeMB
	}
	if o.Margin <= 0 {
		o.Margin = bitrate.DefaultMargin
	}
	if o.MinKbps == 0 && o.MaxKbps == 0 {
		o.MinKbps, o.MaxKbps = bitrate.RangeVoice.MinKbps, bitrate.RangeVoice.MaxKbps
	}
	if o.Profile == "" {
		o.Profile = model.ProfileM4A
	}
	if o.Channels == 0 {
		o.Channels = DefaultChannels
	}
	if o.SampleRateHz == 0 {
		o.SampleRateHz = model.DefaultSampleRateHz
	}
	if o.Suffix == "" {
		o.Suffix = media.DefaultSuffix
	}
	return o
}

// BuildPlan picks the settings for input given its probe result. A positive
// BitrateKbps in opts bypasses the solver; the plan then flags whether the
// predicted size overshoots the target.
func BuildPlan(input string, info model.MediaInfo, opts model.JobOptions) (Plan, error) {
	opts = WithDefaults(opts)

	pl := Plan{
		Input:        input,
		OutputPath:   media.OutputPath(input, opts.OutDir, opts.Suffix, opts.Profile),
		Info:         info,
		TargetSizeMB: opts.TargetSizeMB,
		Settings: model.TranscodeSettings{
			Profile:      opts.Profile,
			Channels:     opts.Channels,
			SampleRateHz: opts.SampleRateHz,
		},
	}

	if opts.BitrateKbps > 0 {
		pl.Manual = true
		pl.Settings.BitrateKbps = opts.BitrateKbps
	} else {
		r := bitrate.Range{MinKbps: opts.MinKbps, MaxKbps: opts.MaxKbps}
		kbps, err := bitrate.Solve(info.DurationSec, opts.TargetSizeMB, opts.Margin, r)
		if err != nil {
			return pl, err
		}
		// Solve succeeded, so the unclamped value is well defined.
		pl.IdealKbps, _ = bitrate.IdealKbps(info.DurationSec, opts.TargetSizeMB, opts.Margin)
		pl.Settings.BitrateKbps = kbps
	}

	if err := pl.Settings.Validate(); err != nil {
		return pl, err
	}
	pl.PredictedSizeMB = bitrate.PredictedSizeMB(pl.Settings.BitrateKbps, info.DurationSec)
	pl.ExceedsTarget = pl.PredictedSizeMB > opts.TargetSizeMB
	return pl, nil
}

// Clamped reports whether the solver result was moved into range.
func (p Plan) Clamped() bool {
	return !p.Manual && p.IdealKbps != p.Settings.BitrateKbps
}
