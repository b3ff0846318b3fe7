package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/ingestion"
	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/store"
)

// maxJobProgress bounds the progress lines kept per job.
const maxJobProgress = 200

// Job states reported by GET /api/sessions/{session}/ingest.
const (
	jobRunning   = "running"
	jobSucceeded = "succeeded"
	jobFailed    = "failed"
)

// jobStatus is the JSON view of one ingestion job.
type jobStatus struct {
	// Session is the session being ingested.
	Session string `json:"session"`
	// State is running, succeeded or failed.
	State string `json:"state"`
	// StartedAt is when the job was accepted.
	StartedAt time.Time `json:"startedAt"`
	// FinishedAt is set once the job ends.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	// Progress holds the most recent progress messages.
	Progress []string `json:"progress"`
	// Counts maps file outcome to number of files. Set on completion.
	Counts map[string]int `json:"counts,omitempty"`
	// Records is the number of records written. Set on completion.
	Records int `json:"records"`
	// Error is the failure reason when State is failed.
	Error string `json:"error,omitempty"`
}

// jobTracker holds the latest job per session. At most one job runs per
// session at a time.
type jobTracker struct {
	// mu protects jobs.
	mu sync.Mutex
	// jobs maps session id to its latest job.
	jobs map[string]*jobStatus
}

// newJobTracker returns an empty jobTracker.
func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[string]*jobStatus)}
}

// start registers a running job for session. It returns false when one is
// already running.
func (t *jobTracker) start(session string, now time.Time) (jobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[session]; ok && j.State == jobRunning {
		return j.snapshot(), false
	}
	j := &jobStatus{Session: session, State: jobRunning, StartedAt: now, Progress: []string{}}
	t.jobs[session] = j
	return j.snapshot(), true
}

// progress appends msg to the running job for session.
func (t *jobTracker) progress(session, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[session]
	if !ok {
		return
	}
	j.Progress = append(j.Progress, msg)
	if len(j.Progress) > maxJobProgress {
		j.Progress = j.Progress[len(j.Progress)-maxJobProgress:]
	}
}

// finish records the job result for session.
func (t *jobTracker) finish(session string, report ingestion.Report, err error, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[session]
	if !ok {
		return
	}
	j.FinishedAt = &now
	j.Records = report.Records
	j.Counts = make(map[string]int)
	for _, f := range report.Files {
		j.Counts[string(f.Outcome)]++
	}
	if err != nil {
		j.State = jobFailed
		j.Error = err.Error()
		return
	}
	j.State = jobSucceeded
}

// get returns a copy of the latest job for session.
func (t *jobTracker) get(session string) (jobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[session]
	if !ok {
		return jobStatus{}, false
	}
	return j.snapshot(), true
}

// snapshot copies j so it can be encoded outside the lock.
func (j *jobStatus) snapshot() jobStatus {
	c := *j
	c.Progress = append([]string(nil), j.Progress...)
	if j.Counts != nil {
		c.Counts = make(map[string]int, len(j.Counts))
		for k, v := range j.Counts {
			c.Counts[k] = v
		}
	}
	return c
}

// sessionDir validates the {session} path value and resolves its upload
// directory. It writes the error response and returns false on failure.
func (s *Server) sessionDir(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	session := r.PathValue("session")
	if err := guidance.ValidateSession(session); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return "", "", false
	}
	return session, filepath.Join(s.cfg.UploadsDir, session), true
}

// handleIngest handles POST /api/sessions/{session}/ingest. It starts a
// background ingestion job and returns 202 with the job status, or 409 when
// a job for the session is already running.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	session, dir, ok := s.sessionDir(w, r)
	if !ok {
		return
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error("stat session dir failed", slog.String("dir", dir), slog.Any("error", err))
		http.Error(w, "failed to read session", http.StatusInternalServerError)
		return
	case !info.IsDir():
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	status, started := s.jobs.start(session, time.Now())
	if !started {
		writeJSON(w, r, http.StatusConflict, status)
		return
	}

	s.jobsWG.Add(1)
	s.metrics.ingestJobsActive.Inc()
	go s.runJob(session, dir)

	log.Info("ingestion job accepted", slog.String("session", session))
	writeJSON(w, r, http.StatusAccepted, status)
}

// runJob executes one ingestion job detached from the request.
func (s *Server) runJob(session, dir string) {
	defer s.jobsWG.Done()
	defer s.metrics.ingestJobsActive.Dec()

	log := s.log.With(slog.String("session", session))
	ctx := logging.WithLogger(s.jobsCtx, log)

	report, err := s.ingester.Ingest(ctx, dir, func(msg string) {
		s.jobs.progress(session, msg)
	})
	s.jobs.finish(session, report, err, time.Now())

	outcome := jobSucceeded
	if err != nil {
		outcome = jobFailed
		log.Error("ingestion job failed", slog.Any("error", err))
	}
	s.metrics.ingestJobsTotal.WithLabelValues(outcome).Inc()
}

// handleJobStatus handles GET /api/sessions/{session}/ingest.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.sessionDir(w, r)
	if !ok {
		return
	}
	status, found := s.jobs.get(session)
	if !found {
		http.Error(w, "no ingestion job for session", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleFiles handles GET /api/sessions/{session}/files, listing the
// ingestion ledger rows for the session.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.sessionDir(w, r)
	if !ok {
		return
	}
	if s.ledger == nil {
		http.Error(w, "ingestion ledger not configured", http.StatusNotImplemented)
		return
	}
	rows, err := s.ledger.List(r.Context(), session)
	if err != nil {
		logging.FromContext(r.Context()).Error("ledger list failed", slog.Any("error", err))
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, fileResponses(rows))
}

// fileResponses converts ledger rows to their JSON view.
func fileResponses(rows []store.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, fileResponse{
			Source:    row.Source,
			Outcome:   string(row.Outcome),
			Reason:    row.Reason,
			Topics:    row.Topics,
			Records:   row.Records,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out
}
