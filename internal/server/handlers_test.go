package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/testutil"
)

// stubSource serves the same fixed page image for any document.
type stubSource struct {
	pages map[int]image.Image
	err   error
}

func (s stubSource) PageImages(filename string, pages []int) (map[int]image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pages, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	sheet := testutil.SheetWithMarks(1280, 1280, testutil.Mark{X: 560, Y: 560, Size: 160})
	source := stubSource{pages: map[int]image.Image{1: sheet}}

	det := testutil.MarkDetector(0.01, 160, 0.9, "smoke_detector")
	orch, err := pipeline.NewOrchestrator(det, nil)
	require.NoError(t, err)

	defaults := pipeline.DefaultAnalyzeOptions()
	defaults.Run.Parallel = false
	defaults.Run.UseCache = false

	return New(orch, source, nil, Config{
		MaxUploadMB:  1,
		UploadDir:    t.TempDir(),
		JobRetention: time.Hour,
		Defaults:     defaults,
	})
}

// uploadRequest builds a multipart POST with a "pdf" part and optional
// extra form fields.
func uploadRequest(t *testing.T, url string, payload []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("pdf", "site.pdf")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// waitForJob polls the registry until the job leaves the running states.
func waitForJob(t *testing.T, srv *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := srv.Jobs().Get(id)
		require.True(t, ok)
		if job.Status == JobCompleted || job.Status == JobFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return Job{}
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAnalyzeFlow(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "/api/analyze", []byte("%PDF-1.4"), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "queued", accepted.Status)
	require.NotEmpty(t, accepted.JobID)

	job := waitForJob(t, srv, accepted.JobID)
	require.Equal(t, JobCompleted, job.Status, job.Error)
	require.NotNil(t, job.Result)
	assert.Equal(t, 1, job.Result.TotalDevices)

	// Poll endpoint reflects the stored state.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+accepted.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var polled Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &polled))
	assert.Equal(t, JobCompleted, polled.Status)
	assert.Equal(t, polled.PagesTotal, polled.PagesDone)
}

func TestAnalyzeRejectsBadOptions(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/analyze", []byte("%PDF-1.4"), map[string]string{"confidence": "2.5"})
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = uploadRequest(t, "/api/analyze", []byte("%PDF-1.4"), map[string]string{"pages": "3-1"})
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRequiresFile(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("confidence", "0.5"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsOversizedUpload(t *testing.T) {
	srv := newTestServer(t) // 1 MB limit

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/analyze", make([]byte, 2<<20), nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJobHandlerNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/deadbeef", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportHandler(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	job, err := srv.Jobs().Create("floor plan.pdf", "")
	require.NoError(t, err)

	// Not completed yet.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/export", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	srv.Jobs().SetCompleted(job.ID, &pipeline.DocumentAnalysis{
		Filename:     "floor plan.pdf",
		TotalDevices: 2,
	})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"floor plan_analysis.json"`)

	var doc pipeline.DocumentAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 2, doc.TotalDevices)
}

func TestVisualizeHandler(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	job, err := srv.Jobs().Create("site.pdf", "/tmp/anywhere.pdf")
	require.NoError(t, err)
	srv.Jobs().SetCompleted(job.ID, &pipeline.DocumentAnalysis{
		Pages: []pipeline.PageAnalysis{{
			PageNumber: 1,
			Devices:    []pipeline.Device{{Type: "smoke_detector", X: 560, Y: 560, Width: 160, Height: 160}},
		}},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/visualize/%s/1", job.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())

	// Page outside the analysis.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/visualize/%s/9", job.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad page number.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/visualize/%s/zero", job.ID), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeTextUnavailableWithoutAssistant(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "/api/analyze/text", []byte("%PDF-1.4"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseAnalyzeOptionsOverrides(t *testing.T) {
	srv := newTestServer(t)

	req := uploadRequest(t, "/api/analyze", []byte("x"), map[string]string{
		"pages":      "1,3-4",
		"confidence": "0.6",
		"tile_size":  "512",
		"overlap":    "0.1",
		"parallel":   "true",
		"early_stop": "2",
	})
	require.NoError(t, req.ParseMultipartForm(1<<20))

	opts, err := srv.parseAnalyzeOptions(req)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, opts.Pages)
	assert.Equal(t, 0.6, opts.Run.Confidence)
	assert.Equal(t, 512, opts.Tiling.TileSize)
	assert.Equal(t, 0.1, opts.Tiling.Overlap)
	assert.True(t, opts.Run.Parallel)
	assert.Equal(t, 2, opts.Run.EarlyStopCount)
}
