package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestPaths(t *testing.T) {
	m := New("/ws", 0, nil)
	if m.Retention != DefaultRetention {
		t.Errorf("Retention = %v, want %v", m.Retention, DefaultRetention)
	}

	id := NewRequestID()
	if !ValidID(id) {
		t.Fatalf("NewRequestID() = %q is not valid", id)
	}
	if NewRequestID() == id {
		t.Error("request ids repeat")
	}

	in := m.InputPath(id, "../../etc/my talk.mp4")
	if want := filepath.Join("/ws", id+"_my_talk.mp4"); in != want {
		t.Errorf("InputPath = %q, want %q", in, want)
	}
	out := m.OutputPath(id, "my_talk_downsized.m4a")
	if !strings.HasPrefix(filepath.Base(out), id+"_") || filepath.Dir(out) != "/ws" {
		t.Errorf("OutputPath = %q", out)
	}
}

func TestSweep_RemovesExpiredOnly(t *testing.T) {
	root := t.TempDir()
	m := New(root, time.Hour, nil)
	now := time.Now()

	old := filepath.Join(root, "old_in.mp4")
	fresh := filepath.Join(root, "fresh_in.mp4")
	touch(t, old, now.Add(-2*time.Hour))
	touch(t, fresh, now.Add(-10*time.Minute))

	st, err := m.Sweep(now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if st.Removed != 1 || st.Skipped {
		t.Errorf("stats = %+v, want 1 removed", st)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expired entry still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, lockName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestSweep_SkipsWhenLocked(t *testing.T) {
	root := t.TempDir()
	m := New(root, time.Hour, nil)
	old := filepath.Join(root, "old_in.mp4")
	touch(t, old, time.Now().Add(-3*time.Hour))

	// A second descriptor on the same file conflicts even within one process.
	other := flock.New(filepath.Join(root, lockName))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer func() { _ = other.Unlock() }()

	st, err := m.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if !st.Skipped {
		t.Error("expected Skipped while lock held")
	}
	if _, err := os.Stat(old); err != nil {
		t.Errorf("entry removed while locked: %v", err)
	}
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	m := New(root, time.Hour, nil)
	id := NewRequestID()
	keep := NewRequestID()

	touch(t, m.InputPath(id, "a.mp4"), time.Now())
	touch(t, m.OutputPath(id, "a_downsized.m4a"), time.Now())
	touch(t, m.InputPath(keep, "b.mp4"), time.Now())

	if err := m.Remove(id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), keep) {
		t.Errorf("remaining entries = %v", entries)
	}
	if err := m.Remove("../x"); err == nil {
		t.Error("Remove accepted an invalid id")
	}
}
