package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"voxtrim/internal/model"
	"voxtrim/internal/pipeline"
	"voxtrim/internal/util/media"
	"voxtrim/internal/workspace"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jobOptions applies the optional form overrides to the server defaults.
func (s *Server) jobOptions(r *http.Request) (model.JobOptions, error) {
	opts := pipeline.WithDefaults(s.opts.Job)
	opts.OutDir = s.opts.Workspace.Root
	opts.DeleteInput = true
	opts.DryRun = false

	if v := strings.TrimSpace(r.FormValue("target_size_mb")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, fmt.Errorf("target_size_mb must be a positive number")
		}
		opts.TargetSizeMB = f
	}
	if v := strings.TrimSpace(r.FormValue("profile")); v != "" {
		p, err := model.ParseCodecProfile(v)
		if err != nil {
			return opts, err
		}
		opts.Profile = p
	}
	if v := strings.TrimSpace(r.FormValue("bitrate_kbps")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("bitrate_kbps must be a non-negative integer")
		}
		opts.BitrateKbps = n
	}
	return opts, nil
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	opts, err := s.jobOptions(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := workspace.NewRequestID()
	input := s.opts.Workspace.InputPath(id, header.Filename)
	output := s.opts.Workspace.OutputPath(id, media.OutputName(header.Filename, opts.Suffix, opts.Profile))
	if err := saveUpload(input, file); err != nil {
		s.log.Error("store upload", "job_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	j := newJob(id, header.Filename, opts.Profile, s.now())
	s.jobs.add(j)
	s.log.Info("job accepted", "job_id", id, "filename", header.Filename, "bytes", header.Size)
	s.start(j, input, output, opts)

	w.Header().Set("Location", "/api/jobs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func saveUpload(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	st, _ := j.snapshot()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	st, path := j.snapshot()
	if st.State != StateDone {
		writeJSONError(w, http.StatusConflict, fmt.Sprintf("job is %s", st.State))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSONError(w, http.StatusGone, "artifact expired")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "could not open artifact")
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not stat artifact")
		return
	}

	name := media.OutputName(j.filename, s.suffix(), j.profile)
	w.Header().Set("Content-Type", j.profile.MIMEType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func (s *Server) suffix() string {
	return pipeline.WithDefaults(s.opts.Job).Suffix
}
