package dirs

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestXDGOverrides(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG variables only apply on linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "cfg"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", ConfigDir, filepath.Join(base, "cfg", "voxtrim")},
		{"cache", CacheDir, filepath.Join(base, "cache", "voxtrim")},
		{"state", StateDir, filepath.Join(base, "state", "voxtrim")},
		{"workspace", WorkspaceDir, filepath.Join(base, "cache", "voxtrim", "workspace")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHomeFallback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("home layout checked on linux only")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	if got, _ := ConfigDir(); got != filepath.Join(home, ".config", "voxtrim") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got, _ := StateDir(); got != filepath.Join(home, ".local", "state", "voxtrim") {
		t.Errorf("StateDir() = %q", got)
	}
}
