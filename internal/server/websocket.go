package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The progress feed carries no secrets; allow any origin.
		return true
	},
}

// ProgressMessage is one update on a job's WebSocket feed.
type ProgressMessage struct {
	Type       string  `json:"type"` // "started", "page", "completed", "failed"
	JobID      string  `json:"job_id"`
	PageNumber int     `json:"page_number,omitempty"`
	PagesDone  int     `json:"pages_done"`
	PagesTotal int     `json:"pages_total"`
	Percent    float64 `json:"percent"`
	Error      string  `json:"error,omitempty"`
}

// progressHub fans job progress updates out to WebSocket subscribers.
type progressHub struct {
	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]bool
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[string]map[*websocket.Conn]bool)}
}

func (h *progressHub) subscribe(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*websocket.Conn]bool)
	}
	h.subs[jobID][conn] = true
}

func (h *progressHub) unsubscribe(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[jobID], conn)
	if len(h.subs[jobID]) == 0 {
		delete(h.subs, jobID)
	}
}

// broadcast sends a message to all subscribers of a job. Write failures
// drop the subscriber.
func (h *progressHub) broadcast(jobID string, msg ProgressMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subs[jobID] {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("dropping websocket subscriber", "job", jobID, "error", err)
			_ = conn.Close()
			delete(h.subs[jobID], conn)
			continue
		}
		websocketMessagesTotal.WithLabelValues("sent").Inc()
	}
}

// jobProgressSocketHandler streams job progress updates to the client
// until the job finishes or the client disconnects.
func (s *Server) jobProgressSocketHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, ok := s.jobs.Get(jobID); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.hub.subscribe(jobID, conn)
	defer s.hub.unsubscribe(jobID, conn)

	slog.Info("progress feed connected", "job", jobID, "remote", r.RemoteAddr)

	// Push current state immediately so late subscribers see progress.
	if job, ok := s.jobs.Get(jobID); ok {
		s.hub.broadcast(jobID, progressSnapshot(job))
	}

	// Drain the read side; clients only listen but we must notice closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read ended", "job", jobID, "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
	}
}

// progressSnapshot converts a job snapshot into a feed message.
func progressSnapshot(job Job) ProgressMessage {
	msg := ProgressMessage{
		JobID:      job.ID,
		PagesDone:  job.PagesDone,
		PagesTotal: job.PagesTotal,
		Percent:    percent(job.PagesDone, job.PagesTotal),
	}
	switch job.Status {
	case JobCompleted:
		msg.Type = "completed"
		msg.Percent = 100
	case JobFailed:
		msg.Type = "failed"
		msg.Error = job.Error
	case JobRunning:
		msg.Type = "page"
	default:
		msg.Type = "started"
	}
	return msg
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(done) / float64(total)
}

// jobProgress bridges pipeline progress callbacks to the registry and
// the WebSocket hub.
type jobProgress struct {
	jobs  *Registry
	hub   *progressHub
	jobID string
}

func (p *jobProgress) OnStart(totalPages int) {
	p.jobs.SetProgress(p.jobID, 0, totalPages)
	p.hub.broadcast(p.jobID, ProgressMessage{
		Type:       "started",
		JobID:      p.jobID,
		PagesTotal: totalPages,
	})
}

func (p *jobProgress) OnPage(pageNumber, completed, totalPages int) {
	p.jobs.SetProgress(p.jobID, completed, totalPages)
	p.hub.broadcast(p.jobID, ProgressMessage{
		Type:       "page",
		JobID:      p.jobID,
		PageNumber: pageNumber,
		PagesDone:  completed,
		PagesTotal: totalPages,
		Percent:    percent(completed, totalPages),
	})
}

func (p *jobProgress) OnComplete() {
	// Terminal status is broadcast by the job runner once the result or
	// error is recorded.
}
