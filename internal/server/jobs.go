package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/planscan-tech/planscan/internal/pipeline"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job tracks one asynchronous document analysis.
type Job struct {
	ID         string                     `json:"id"`
	Status     JobStatus                  `json:"status"`
	Filename   string                     `json:"filename"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
	PagesDone  int                        `json:"pages_done"`
	PagesTotal int                        `json:"pages_total"`
	Error      string                     `json:"error,omitempty"`
	Result     *pipeline.DocumentAnalysis `json:"result,omitempty"`

	// pdfPath is the uploaded file on disk, kept until the job expires
	// so overlays can be rendered on demand.
	pdfPath string
}

// Registry is an in-memory job store guarded by a mutex. Jobs expire
// after the retention window; their uploaded files are removed with them.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
}

// NewRegistry creates a job registry with the given retention window.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		retention: retention,
	}
}

// Create registers a new queued job and returns its snapshot.
func (r *Registry) Create(filename, pdfPath string) (Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Job{}, fmt.Errorf("failed to generate job id: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:        id.String(),
		Status:    JobQueued,
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
		pdfPath:   pdfPath,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return *job, nil
}

// Get returns a snapshot of the job with the given ID.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// PDFPath returns the stored upload path for a job.
func (r *Registry) PDFPath(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return "", false
	}
	return job.pdfPath, true
}

// SetRunning transitions a job to running.
func (r *Registry) SetRunning(id string) {
	r.update(id, func(j *Job) {
		j.Status = JobRunning
	})
}

// SetProgress records page completion counts.
func (r *Registry) SetProgress(id string, done, total int) {
	r.update(id, func(j *Job) {
		j.PagesDone = done
		j.PagesTotal = total
	})
}

// SetCompleted stores the finished result.
func (r *Registry) SetCompleted(id string, result *pipeline.DocumentAnalysis) {
	r.update(id, func(j *Job) {
		j.Status = JobCompleted
		j.Result = result
	})
}

// SetFailed records a terminal failure.
func (r *Registry) SetFailed(id string, err error) {
	r.update(id, func(j *Job) {
		j.Status = JobFailed
		j.Error = err.Error()
	})
}

func (r *Registry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}

// Len reports the number of stored jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Sweep removes expired jobs and their uploaded files. Running jobs are
// never swept regardless of age.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	var expired []*Job
	for id, job := range r.jobs {
		if job.UpdatedAt.Before(cutoff) && job.Status != JobRunning {
			expired = append(expired, job)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, job := range expired {
		if job.pdfPath != "" {
			if err := os.Remove(job.pdfPath); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove expired upload", "job", job.ID, "error", err)
			}
		}
	}
	return len(expired)
}

// RunSweeper sweeps periodically until the context is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("swept expired jobs", "count", n)
			}
		}
	}
}
