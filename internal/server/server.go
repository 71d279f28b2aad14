// Package server exposes the drawing analysis pipeline over HTTP:
// asynchronous analysis jobs, result export, overlay rendering, and a
// WebSocket progress feed.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planscan-tech/planscan/internal/pdf"
	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/summarize"
)

// Config holds server tuning knobs.
type Config struct {
	MaxUploadMB  int64
	UploadDir    string
	JobRetention time.Duration
	Defaults     pipeline.AnalyzeOptions
}

// Server holds HTTP state and the analysis dependencies.
type Server struct {
	orch      *pipeline.Orchestrator
	source    pipeline.PageSource
	assistant *summarize.Client

	jobs *Registry
	hub  *progressHub

	maxUploadMB int64
	uploadDir   string
	defaults    pipeline.AnalyzeOptions

	// extractText is swappable in tests.
	extractText func(filename string) ([]pdf.PageText, error)
}

// New creates a server around an orchestrator and a page source. The
// assistant may be nil; text analysis endpoints then report unavailable.
func New(orch *pipeline.Orchestrator, source pipeline.PageSource, assistant *summarize.Client, cfg Config) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 200
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = time.Hour
	}
	return &Server{
		orch:        orch,
		source:      source,
		assistant:   assistant,
		jobs:        NewRegistry(cfg.JobRetention),
		hub:         newProgressHub(),
		maxUploadMB: cfg.MaxUploadMB,
		uploadDir:   cfg.UploadDir,
		defaults:    cfg.Defaults,
		extractText: func(filename string) ([]pdf.PageText, error) {
			return pdf.ExtractText(filename, nil)
		},
	}
}

// Jobs exposes the job registry, mainly for the sweeper and tests.
func (s *Server) Jobs() *Registry { return s.jobs }

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.withMetrics("/healthz", s.healthHandler))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/analyze", s.withMetrics("/api/analyze", s.analyzeHandler))
	mux.HandleFunc("POST /api/analyze/text", s.withMetrics("/api/analyze/text", s.analyzeTextHandler))
	mux.HandleFunc("GET /api/jobs/{id}", s.withMetrics("/api/jobs", s.jobHandler))
	mux.HandleFunc("GET /api/jobs/{id}/export", s.withMetrics("/api/jobs/export", s.exportHandler))
	mux.HandleFunc("GET /api/visualize/{id}/{page}", s.withMetrics("/api/visualize", s.visualizeHandler))
	mux.HandleFunc("GET /ws/jobs/{id}", s.jobProgressSocketHandler)
	return mux
}
