// Package logging builds the hclog loggers used across voxtrim.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options control logger construction.
type Options struct {
	Name   string    // logger name; "voxtrim" when empty
	Level  string    // trace|debug|info|warn|error|off; "info" when empty
	JSON   bool      // emit JSON lines instead of key=value text
	Output io.Writer // defaults to os.Stderr
}

// ParseLevel maps a level name to an hclog.Level.
func ParseLevel(s string) (hclog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return hclog.Info, nil
	}
	l := hclog.LevelFromString(s)
	if l == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level %q (valid: trace|debug|info|warn|error|off)", s)
	}
	return l, nil
}

// New returns a logger for opts. An unknown level falls back to info.
func New(opts Options) hclog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = hclog.Info
	}
	name := opts.Name
	if name == "" {
		name = "voxtrim"
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
		Color:      hclog.ColorOff,
	})
}

// Nop returns a logger that discards everything.
func Nop() hclog.Logger {
	return hclog.NewNullLogger()
}
