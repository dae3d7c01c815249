// Package workspace namespaces uploaded inputs and produced artifacts under
// a shared directory and expires them after a retention window.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"voxtrim/internal/util"
)

// DefaultRetention is how long entries survive before Sweep removes them.
const DefaultRetention = time.Hour

const lockName = ".sweep.lock"

// Manager owns one workspace directory.
type Manager struct {
	Root      string
	Retention time.Duration

	log hclog.Logger
}

// New returns a Manager rooted at root. A non-positive retention means
// DefaultRetention.
func New(root string, retention time.Duration, log hclog.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Manager{Root: root, Retention: retention, log: log}
}

// Init creates the workspace directory.
func (m *Manager) Init() error {
	if err := util.EnsureDir(m.Root); err != nil {
		return fmt.Errorf("create workspace %s: %w", m.Root, err)
	}
	return nil
}

// NewRequestID returns a fresh identifier for namespacing one request.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a request id produced by NewRequestID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// InputPath returns where the upload named name for request id is stored.
func (m *Manager) InputPath(id, name string) string {
	return m.path(id, name)
}

// OutputPath returns where the artifact named name for request id is written.
func (m *Manager) OutputPath(id, name string) string {
	return m.path(id, name)
}

func (m *Manager) path(id, name string) string {
	return filepath.Join(m.Root, id+"_"+util.SanitizeFilename(filepath.Base(name)))
}

// Remove deletes every entry belonging to request id.
func (m *Manager) Remove(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("invalid request id %q", id)
	}
	matches, err := filepath.Glob(filepath.Join(m.Root, id+"_*"))
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range matches {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepStats summarises one Sweep.
type SweepStats struct {
	Removed int
	Bytes   int64
	Skipped bool // another process held the sweep lock
}

// Sweep removes entries whose modification time is older than the retention
// window relative to now. Concurrent sweeps across processes are serialised
// by an exclusive lock file; a sweep that cannot take it returns immediately
// with Skipped set.
func (m *Manager) Sweep(now time.Time) (SweepStats, error) {
	var st SweepStats
	if err := m.Init(); err != nil {
		return st, err
	}

	lock := flock.New(filepath.Join(m.Root, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return st, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		st.Skipped = true
		m.log.Debug("sweep skipped, lock held elsewhere", "root", m.Root)
		return st, nil
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := os.ReadDir(m.Root)
	if err != nil {
		return st, fmt.Errorf("read workspace: %w", err)
	}
	cutoff := now.Add(-m.Retention)
	var errs []error
	for _, e := range entries {
		if e.Name() == lockName || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(m.Root, e.Name())
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
			continue
		}
		st.Removed++
		if info.Mode().IsRegular() {
			st.Bytes += info.Size()
		}
		m.log.Trace("swept", "path", p, "age", now.Sub(info.ModTime()))
	}
	if st.Removed > 0 {
		m.log.Info("workspace swept", "removed", st.Removed, "bytes", st.Bytes)
	}
	return st, errors.Join(errs...)
}
