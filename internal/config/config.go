// Package config resolves voxtrim settings from flags, VOXTRIM_* environment
// variables, the config file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"voxtrim/internal/dirs"
	"voxtrim/internal/logging"
	"voxtrim/internal/model"
	"voxtrim/internal/util/bitrate"
	"voxtrim/internal/util/media"
	"voxtrim/internal/workspace"
)

// EnvPrefix prefixes every environment variable, e.g. VOXTRIM_TARGET_SIZE_MB.
const EnvPrefix = "VOXTRIM"

// Viper keys.
const (
	KeyOutDir        = "out_dir"
	KeyVerbose       = "verbose"
	KeyJobs          = "jobs"
	KeyFFmpegBinary  = "ffmpeg_binary"
	KeyFFprobeBinary = "ffprobe_binary"
	KeyTargetSizeMB  = "target_size_mb"
	KeyMargin        = "margin"
	KeyBitrateRange  = "bitrate_range"
	KeyMinKbps       = "min_kbps"
	KeyMaxKbps       = "max_kbps"
	KeyProfile       = "profile"
	KeyChannels      = "channels"
	KeySampleRate    = "sample_rate"
	KeyBitrateKbps   = "bitrate_kbps"
	KeySuffix        = "suffix"
	KeyDeleteInput   = "delete_input"
	KeyWorkspaceDir  = "workspace_dir"
	KeyRetention     = "retention"
	KeyListen        = "listen"
	KeyLogLevel      = "log_level"
	KeyLogJSON       = "log_json"
	KeyWatchSettle   = "watch_settle"
)

// flagKeys maps command-line flag names to viper keys.
var flagKeys = map[string]string{
	"out-dir":      KeyOutDir,
	"verbose":      KeyVerbose,
	"jobs":         KeyJobs,
	"ffmpeg":       KeyFFmpegBinary,
	"ffprobe":      KeyFFprobeBinary,
	"target-size":  KeyTargetSizeMB,
	"margin":       KeyMargin,
	"range":        KeyBitrateRange,
	"min-kbps":     KeyMinKbps,
	"max-kbps":     KeyMaxKbps,
	"profile":      KeyProfile,
	"channels":     KeyChannels,
	"sample-rate":  KeySampleRate,
	"bitrate":      KeyBitrateKbps,
	"suffix":       KeySuffix,
	"delete-input": KeyDeleteInput,
	"workspace":    KeyWorkspaceDir,
	"retention":    KeyRetention,
	"listen":       KeyListen,
	"log-level":    KeyLogLevel,
	"log-json":     KeyLogJSON,
	"settle":       KeyWatchSettle,
}

// Config is the fully resolved configuration.
type Config struct {
	Job          model.JobOptions
	BitrateRange string
	WorkspaceDir string
	Retention    time.Duration
	Listen       string
	LogLevel     string
	LogJSON      bool
	WatchSettle  time.Duration
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyOutDir, "")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyJobs, 2)
	v.SetDefault(KeyFFmpegBinary, "")
	v.SetDefault(KeyFFprobeBinary, "")
	v.SetDefault(KeyTargetSizeMB, 80.0)
	v.SetDefault(KeyMargin, bitrate.DefaultMargin)
	v.SetDefault(KeyBitrateRange, "voice")
	v.SetDefault(KeyMinKbps, 0)
	v.SetDefault(KeyMaxKbps, 0)
	v.SetDefault(KeyProfile, string(model.ProfileM4A))
	v.SetDefault(KeyChannels, 1)
	v.SetDefault(KeySampleRate, model.DefaultSampleRateHz)
	v.SetDefault(KeyBitrateKbps, 0)
	v.SetDefault(KeySuffix, media.DefaultSuffix)
	v.SetDefault(KeyDeleteInput, false)
	v.SetDefault(KeyWorkspaceDir, "")
	v.SetDefault(KeyRetention, workspace.DefaultRetention)
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)
	v.SetDefault(KeyWatchSettle, 2*time.Second)
}

// Init wires v with config paths, env, defaults, and flag bindings for the
// persistent flags of root. A missing config file is not an error.
func Init(v *viper.Viper, root *cobra.Command) error {
	SetDefaults(v)

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		v.AddConfigPath(cfgDir)
	}
	v.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if root != nil {
		if err := BindFlags(v, root.PersistentFlags()); err != nil {
			return err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// BindFlags binds every known flag present in fs to its viper key. Commands
// call it for their local flags so that flag > env > file > default holds.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (Config, error) {
	profile, err := model.ParseCodecProfile(v.GetString(KeyProfile))
	if err != nil {
		return Config{}, err
	}
	rng, err := bitrate.ParseRange(v.GetString(KeyBitrateRange))
	if err != nil {
		return Config{}, err
	}
	if n := v.GetInt(KeyMinKbps); n > 0 {
		rng.MinKbps = n
	}
	if n := v.GetInt(KeyMaxKbps); n > 0 {
		rng.MaxKbps = n
	}

	c := Config{
		Job: model.JobOptions{
			OutDir:        v.GetString(KeyOutDir),
			TargetSizeMB:  v.GetFloat64(KeyTargetSizeMB),
			Margin:        v.GetFloat64(KeyMargin),
			MinKbps:       rng.MinKbps,
			MaxKbps:       rng.MaxKbps,
			Profile:       profile,
			Channels:      v.GetInt(KeyChannels),
			SampleRateHz:  v.GetInt(KeySampleRate),
			BitrateKbps:   v.GetInt(KeyBitrateKbps),
			Suffix:        v.GetString(KeySuffix),
			DeleteInput:   v.GetBool(KeyDeleteInput),
			Verbose:       v.GetBool(KeyVerbose),
			FFmpegBinary:  v.GetString(KeyFFmpegBinary),
			FFprobeBinary: v.GetString(KeyFFprobeBinary),
			Jobs:          v.GetInt(KeyJobs),
		},
		BitrateRange: v.GetString(KeyBitrateRange),
		WorkspaceDir: v.GetString(KeyWorkspaceDir),
		Retention:    v.GetDuration(KeyRetention),
		Listen:       v.GetString(KeyListen),
		LogLevel:     v.GetString(KeyLogLevel),
		LogJSON:      v.GetBool(KeyLogJSON),
		WatchSettle:  v.GetDuration(KeyWatchSettle),
	}
	if c.Job.Verbose && strings.EqualFold(c.LogLevel, "info") {
		c.LogLevel = "debug"
	}
	if c.WorkspaceDir == "" {
		if d, err := dirs.WorkspaceDir(); err == nil {
			c.WorkspaceDir = d
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	j := c.Job
	switch {
	case j.TargetSizeMB <= 0:
		return fmt.Errorf("%s must be positive, got %v", KeyTargetSizeMB, j.TargetSizeMB)
	case j.Margin <= 0 || j.Margin > 1:
		return fmt.Errorf("%s must be in (0, 1], got %v", KeyMargin, j.Margin)
	case j.Channels != 1 && j.Channels != 2:
		return fmt.Errorf("%s must be 1 or 2, got %d", KeyChannels, j.Channels)
	case j.SampleRateHz <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeySampleRate, j.SampleRateHz)
	case j.BitrateKbps < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeyBitrateKbps, j.BitrateKbps)
	case j.Jobs < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyJobs, j.Jobs)
	case c.Retention <= 0:
		return fmt.Errorf("%s must be positive, got %v", KeyRetention, c.Retention)
	case c.WatchSettle <= 0:
		return fmt.Errorf("%s must be positive, got %v", KeyWatchSettle, c.WatchSettle)
	}
	if err := (bitrate.Range{MinKbps: j.MinKbps, MaxKbps: j.MaxKbps}).Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
