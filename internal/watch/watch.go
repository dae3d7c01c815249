// Package watch turns a directory into an inbox: media files that appear in
// it are handed, one at a time, to a handler once they stop changing.
package watch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"voxtrim/internal/util/media"
)

// DefaultSettle is how long a file must go without writes before it is
// handed off.
const DefaultSettle = 2 * time.Second

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher watches a single directory (not recursively).
type Watcher struct {
	dir    string
	handle Handler
	settle time.Duration
	suffix string
	log    hclog.Logger

	fs *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets how long a file must go without create or write events
// before it is handed to the handler. Non-positive values keep DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithSuffix sets the output suffix; files already carrying it are ignored.
func WithSuffix(s string) Option { return func(w *Watcher) { w.suffix = s } }

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l hclog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New starts watching dir. Events are only consumed once Run is called.
func New(dir string, h Handler, opts ...Option) (*Watcher, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &Watcher{
		dir:    dir,
		handle: h,
		settle: DefaultSettle,
		suffix: media.DefaultSuffix,
		log:    hclog.NewNullLogger(),
		seen:   make(map[string]bool),
	}
	for _, o := range opts {
		o(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fs = fsw
	return w, nil
}

// Run consumes events until ctx is cancelled. Each file is handled at most
// once per Watcher; handler errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	ready := make(chan string, 64)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		for path := range ready {
			if ctx.Err() != nil {
				continue
			}
			w.log.Info("processing", "path", path)
			if err := w.handle(ctx, path); err != nil {
				w.log.Error("failed", "path", path, "error", err)
			}
		}
	}()
	defer worker.Wait()
	defer close(ready)

	pending := make(map[string]time.Time) // path -> last write
	tick := w.settle / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	w.log.Info("watching", "dir", w.dir, "settle", w.settle)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !media.IsCandidate(ev.Name, w.suffix) || w.wasSeen(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				fi, err := os.Stat(path)
				if err != nil || fi.IsDir() {
					continue
				}
				w.markSeen(path)
				select {
				case ready <- path:
				case <-ctx.Done():
					return nil
				}
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) wasSeen(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[path]
}

func (w *Watcher) markSeen(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[path] = true
}
