// Package dirs resolves per-user directories for voxtrim following the XDG
// base directory layout on Linux and the platform conventions elsewhere.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxtrim"

// AppName returns the canonical application name for directory paths.
func AppName() string {
	return appName
}

// location describes one directory class.
type location struct {
	xdgEnv    string   // Linux override variable
	linuxRel  []string // relative to $HOME when xdgEnv is unset
	darwinRel []string // relative to $HOME on macOS
	other     func() (string, error)
}

var (
	configLoc = location{
		xdgEnv:    "XDG_CONFIG_HOME",
		linuxRel:  []string{".config"},
		darwinRel: []string{"Library", "Application Support"},
		other:     os.UserConfigDir,
	}
	cacheLoc = location{
		xdgEnv:    "XDG_CACHE_HOME",
		linuxRel:  []string{".cache"},
		darwinRel: []string{"Library", "Caches"},
		other:     os.UserCacheDir,
	}
	stateLoc = location{
		xdgEnv:    "XDG_STATE_HOME",
		linuxRel:  []string{".local", "state"},
		darwinRel: []string{"Library", "Application Support"},
		other:     os.UserCacheDir,
	}
)

func (l location) resolve() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv(l.xdgEnv); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, l.linuxRel...), appName)...), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, l.darwinRel...), appName)...), nil
	default:
		base, err := l.other()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, appName), nil
	}
}

// ConfigDir returns the directory searched for config.{yaml,toml,json}.
// Linux: $XDG_CONFIG_HOME/voxtrim or ~/.config/voxtrim.
func ConfigDir() (string, error) {
	return configLoc.resolve()
}

// CacheDir returns the app's cache directory.
// Linux: $XDG_CACHE_HOME/voxtrim or ~/.cache/voxtrim.
func CacheDir() (string, error) {
	return cacheLoc.resolve()
}

// StateDir returns the app's state directory.
// Linux: $XDG_STATE_HOME/voxtrim or ~/.local/state/voxtrim.
func StateDir() (string, error) {
	return stateLoc.resolve()
}

// WorkspaceDir is the default root for uploads and artifacts of the HTTP
// service, under the cache directory since everything in it expires.
func WorkspaceDir() (string, error) {
	c, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(c, "workspace"), nil
}

// Ensure creates the directory if it doesn't exist.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll ensures the config, cache and state dirs exist.
func EnsureAll() error {
	for _, f := range []func() (string, error){ConfigDir, CacheDir, StateDir} {
		p, err := f()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
