package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/parser"
	"github.com/dgallion1/pageview/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// sheetFields maps form fields onto stylesheet overrides.
var sheetFields = map[string]func(*layout.Stylesheet, float64){
	"page_width":  func(s *layout.Stylesheet, v float64) { s.PageWidth = v },
	"page_height": func(s *layout.Stylesheet, v float64) { s.PageHeight = v },
	"margin":      func(s *layout.Stylesheet, v float64) { s.Margin = v },
	"font_size":   func(s *layout.Stylesheet, v float64) { s.FontSize = v },
	"line_height": func(s *layout.Stylesheet, v float64) { s.LineHeight = v },
}

// parseSheet reads stylesheet overrides from the form and checks that they
// cascade onto the service defaults into a usable sheet.
func (s *Server) parseSheet(r *http.Request) (layout.Stylesheet, error) {
	var sheet layout.Stylesheet
	for field, set := range sheetFields {
		v := r.FormValue(field)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return sheet, fmt.Errorf("%s must be a positive number", field)
		}
		set(&sheet, f)
	}
	if err := layout.Cascade(s.cfg.Stylesheet(), sheet).Validate(); err != nil {
		return sheet, err
	}
	return sheet, nil
}

// readUpload validates and reads one uploaded file. The returned status is
// non-zero when the upload was rejected.
func (s *Server) readUpload(fh *multipart.FileHeader) (string, []byte, int, error) {
	filename := sanitizeFilename(fh.Filename)
	if !parser.IsSupportedExtension(filename) {
		return filename, nil, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	f, err := fh.Open()
	if err != nil {
		return filename, nil, http.StatusInternalServerError, fmt.Errorf("failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return filename, nil, http.StatusInternalServerError, fmt.Errorf("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return filename, nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	return filename, data, 0, nil
}

// uploadJob parses a single-file multipart request into a queued job. It
// writes the error response itself and returns nil on failure.
func (s *Server) uploadJob(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil
	}
	// The upload is read into memory below, so temp files can go on return.
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return nil
	}
	file.Close()
	filename, data, code, err := s.readUpload(header)
	if err != nil {
		jsonError(w, err.Error(), code)
		return nil
	}

	sheet, err := s.parseSheet(r)
	if err != nil {
		jsonError(w, "invalid stylesheet: "+err.Error(), http.StatusBadRequest)
		return nil
	}
	return pipeline.NewJob(uuid.NewString(), filename, r.FormValue("title"), data, sheet)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	job := s.uploadJob(w, r)
	if job == nil {
		return
	}

	pages, err := s.orchestrator.RenderNow(r.Context(), job)
	if err != nil {
		jsonError(w, "render failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"title":  snap.Title,
		"cached": snap.Cached,
		"pages":  pages,
	})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	job := s.uploadJob(w, r)
	if job == nil {
		return
	}

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":    job.ID,
		"status":    pipeline.StatusQueued,
		"poll_url":  fmt.Sprintf("/api/jobs/%s/status", job.ID),
		"pages_url": fmt.Sprintf("/api/jobs/%s/pages", job.ID),
	})
}

func (s *Server) handleBatchJobs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	sheet, err := s.parseSheet(r)
	if err != nil {
		jsonError(w, "invalid stylesheet: "+err.Error(), http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, fh := range files {
		filename, data, _, err := s.readUpload(fh)
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(uuid.NewString(), filename, "", data, sheet)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"job_id":   job.ID,
				"error":    err.Error(),
			})
			continue
		}

		results = append(results, map[string]any{
			"filename": filename,
			"job_id":   job.ID,
			"status":   pipeline.StatusQueued,
			"poll_url": fmt.Sprintf("/api/jobs/%s/status", job.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) handleJobPages(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	pages, done := job.Pages()
	snap := job.Snapshot()
	if !done {
		jsonError(w, fmt.Sprintf("job is %s", snap.Status), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id": snap.ID,
		"title":  snap.Title,
		"cached": snap.Cached,
		"pages":  pages,
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
