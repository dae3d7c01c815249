// Package server exposes voxtrim over HTTP: upload a file, poll the job and
// download the downsized artifact.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxtrim/internal/model"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/util"
	"voxtrim/internal/workspace"
)

// DefaultMaxUploadBytes bounds a single upload.
const DefaultMaxUploadBytes = 2 << 30

// Options configure a Server.
type Options struct {
	Workspace      *workspace.Manager
	Job            model.JobOptions // defaults for every upload
	FFmpegPath     string
	FFprobePath    string
	Runner         util.CmdRunner // nil uses the exec runner
	Jobs           int            // concurrent encodes; <1 means 1
	MaxUploadBytes int64
	Logger         hclog.Logger
}

// Server owns the job table and the encode worker slots.
type Server struct {
	opts   Options
	log    hclog.Logger
	router *mux.Router
	jobs   *jobTable
	slots  chan struct{}
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Server. Call Close to cancel running encodes.
func New(opts Options) (*Server, error) {
	if opts.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if err := opts.Workspace.Init(); err != nil {
		return nil, err
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Runner == nil {
		opts.Runner = util.NewDefaultRunner()
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		log:    opts.Logger,
		jobs:   newJobTable(),
		slots:  make(chan struct{}, opts.Jobs),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument(s.log.Named("http")))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", s.handleCreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/download", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close cancels in-flight encodes and waits for their goroutines.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Sweep expires old workspace entries and forgets finished jobs older than
// the retention window, removing whatever the forgotten jobs left behind.
func (s *Server) Sweep() {
	now := s.now()
	st, err := s.opts.Workspace.Sweep(now)
	if err != nil {
		s.log.Warn("workspace sweep", "error", err)
	}
	expired := s.jobs.expire(now.Add(-s.opts.Workspace.Retention))
	for _, id := range expired {
		if err := s.opts.Workspace.Remove(id); err != nil {
			s.log.Warn("remove expired job", "job_id", id, "error", err)
		}
	}
	if st.Removed > 0 || len(expired) > 0 {
		s.log.Debug("expired", "files", st.Removed, "jobs", len(expired))
	}
}

// ListenAndServe serves on addr until ctx is done, sweeping the workspace at
// startup and once per retention window.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.Sweep()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr, "workspace", s.opts.Workspace.Root, "jobs", s.opts.Jobs)
		errCh <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(s.opts.Workspace.Retention)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			s.Close()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("http server: %w", err)
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			s.Close()
			return err
		}
	}
}

// start runs the pipeline for j in the background once a slot is free. The
// artifact is written to output inside the job's workspace namespace.
func (s *Server) start(j *job, input, output string, opts model.JobOptions) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			j.fail(s.ctx.Err())
			return
		}
		defer func() { <-s.slots }()

		svc := pipeline.NewService(
			pipeline.WithFFmpegPath(s.opts.FFmpegPath),
			pipeline.WithFFprobePath(s.opts.FFprobePath),
			pipeline.WithOptions(opts),
			pipeline.WithRunner(s.opts.Runner),
			pipeline.WithReporter(j),
			pipeline.WithJobID(j.id),
			pipeline.WithOutputNamer(pipeline.OutputFunc(func(string) (string, error) { return output, nil })),
			pipeline.WithLogger(s.log.Named("job").With("job_id", j.id)),
			pipeline.WithMetrics(true),
		)
		if _, err := svc.RunJob(s.ctx, input); err != nil {
			j.fail(err)
			s.log.Warn("job failed", "job_id", j.id, "error_kind", pipeline.KindOf(err), "error", err)
		}
	}()
}
