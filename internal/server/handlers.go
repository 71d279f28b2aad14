package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/visualize"
)

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// analyzeHandler accepts a PDF upload, registers an analysis job, and
// runs it in the background.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	pdfPath, filename, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}

	opts, err := s.parseAnalyzeOptions(r)
	if err != nil {
		_ = os.Remove(pdfPath)
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.jobs.Create(filename, pdfPath)
	if err != nil {
		_ = os.Remove(pdfPath)
		s.writeError(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	go s.runJob(job.ID, pdfPath, opts)

	s.writeJSON(w, http.StatusAccepted, struct {
		JobID  string    `json:"job_id"`
		Status JobStatus `json:"status"`
	}{JobID: job.ID, Status: JobQueued})
}

// runJob executes one analysis job to completion.
func (s *Server) runJob(jobID, pdfPath string, opts pipeline.AnalyzeOptions) {
	s.jobs.SetRunning(jobID)
	progress := &jobProgress{jobs: s.jobs, hub: s.hub, jobID: jobID}

	start := time.Now()
	result, err := s.orch.AnalyzePDF(context.Background(), s.source, pdfPath, opts, progress)
	if err != nil {
		slog.Error("analysis job failed", "job", jobID, "error", err)
		s.jobs.SetFailed(jobID, err)
		analyzeJobsTotal.WithLabelValues("failed").Inc()
		if job, ok := s.jobs.Get(jobID); ok {
			s.hub.broadcast(jobID, progressSnapshot(job))
		}
		return
	}

	s.jobs.SetCompleted(jobID, result)
	analyzeJobsTotal.WithLabelValues("completed").Inc()
	analyzeDuration.Observe(time.Since(start).Seconds())
	pagesProcessedTotal.Add(float64(result.TotalPages))
	devicesDetected.Observe(float64(result.TotalDevices))

	if job, ok := s.jobs.Get(jobID); ok {
		s.hub.broadcast(jobID, progressSnapshot(job))
	}
}

// jobHandler returns the current state of a job.
func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, "job not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// exportHandler returns a completed job's result as a JSON download.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, "job not found", http.StatusNotFound)
		return
	}
	if job.Status != JobCompleted || job.Result == nil {
		s.writeError(w, fmt.Sprintf("job is %s, not completed", job.Status), http.StatusConflict)
		return
	}

	data, err := job.Result.ToJSON()
	if err != nil {
		s.writeError(w, "failed to encode result", http.StatusInternalServerError)
		return
	}

	base := strings.TrimSuffix(filepath.Base(job.Filename), filepath.Ext(job.Filename))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"_analysis.json"))
	_, _ = w.Write(data)
}

// visualizeHandler renders the detected devices of one page onto the
// rasterized page image and returns it as PNG.
func (s *Server) visualizeHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, ok := s.jobs.Get(jobID)
	if !ok {
		s.writeError(w, "job not found", http.StatusNotFound)
		return
	}
	if job.Status != JobCompleted || job.Result == nil {
		s.writeError(w, fmt.Sprintf("job is %s, not completed", job.Status), http.StatusConflict)
		return
	}

	pageNum, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || pageNum < 1 {
		s.writeError(w, "invalid page number", http.StatusBadRequest)
		return
	}

	var page *pipeline.PageAnalysis
	for i := range job.Result.Pages {
		if job.Result.Pages[i].PageNumber == pageNum {
			page = &job.Result.Pages[i]
			break
		}
	}
	if page == nil {
		s.writeError(w, "page not part of this analysis", http.StatusNotFound)
		return
	}

	pdfPath, ok := s.jobs.PDFPath(jobID)
	if !ok || pdfPath == "" {
		s.writeError(w, "source document no longer available", http.StatusGone)
		return
	}

	images, err := s.source.PageImages(pdfPath, []int{pageNum})
	if err != nil {
		s.writeError(w, fmt.Sprintf("failed to rasterize page: %v", err), http.StatusInternalServerError)
		return
	}
	img, ok := images[pageNum]
	if !ok {
		s.writeError(w, "page could not be rasterized", http.StatusInternalServerError)
		return
	}

	overlay := visualize.DrawDevices(img, page.Devices, visualize.DefaultOptions())
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, overlay); err != nil {
		slog.Error("failed to encode overlay", "job", jobID, "page", pageNum, "error", err)
	}
}

// analyzeTextHandler extracts vector text from an uploaded PDF and runs
// it through the text-analysis assistant synchronously.
func (s *Server) analyzeTextHandler(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil || !s.assistant.Available() {
		s.writeError(w, "text analysis assistant is not configured", http.StatusServiceUnavailable)
		return
	}

	pdfPath, _, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}
	defer func() { _ = os.Remove(pdfPath) }()

	pages, err := s.extractText(pdfPath)
	if err != nil {
		s.writeError(w, fmt.Sprintf("text extraction failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	analysis, err := s.assistant.AnalyzePages(r.Context(), pages)
	if err != nil {
		s.writeError(w, fmt.Sprintf("text analysis failed: %v", err), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

// receiveUpload saves the multipart "pdf" file to the upload directory
// and returns its path and original filename. On failure it writes the
// error response and returns ok=false.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (path, filename string, ok bool) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
			s.writeError(w, "file too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeError(w, "failed to parse form data", http.StatusBadRequest)
		}
		return "", "", false
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.writeError(w, "no PDF file provided", http.StatusBadRequest)
		return "", "", false
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeError(w, "file too large", http.StatusRequestEntityTooLarge)
		return "", "", false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	path, err = s.saveUpload(file)
	if err != nil {
		slog.Error("failed to save upload", "error", err)
		s.writeError(w, "failed to store upload", http.StatusInternalServerError)
		return "", "", false
	}
	return path, header.Filename, true
}

func (s *Server) saveUpload(file multipart.File) (string, error) {
	tmp, err := os.CreateTemp(s.uploadDir, "planscan-upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() { _ = tmp.Close() }()

	if _, err := io.Copy(tmp, file); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return tmp.Name(), nil
}

// parseAnalyzeOptions applies per-request form overrides on top of the
// server defaults.
func (s *Server) parseAnalyzeOptions(r *http.Request) (pipeline.AnalyzeOptions, error) {
	opts := s.defaults

	if v := r.FormValue("pages"); v != "" {
		pages, err := pipeline.ParsePageSpec(v)
		if err != nil {
			return opts, err
		}
		opts.Pages = pages
	}
	if v := r.FormValue("confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid confidence %q", v)
		}
		opts.Run.Confidence = f
	}
	if v := r.FormValue("tile_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid tile_size %q", v)
		}
		opts.Tiling.TileSize = n
	}
	if v := r.FormValue("overlap"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid overlap %q", v)
		}
		opts.Tiling.Overlap = f
	}
	if v := r.FormValue("parallel"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid parallel %q", v)
		}
		opts.Run.Parallel = b
	}
	if v := r.FormValue("early_stop"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid early_stop %q", v)
		}
		opts.Run.EarlyStopCount = n
	}

	if err := opts.Tiling.Validate(); err != nil {
		return opts, err
	}
	if err := opts.Run.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
