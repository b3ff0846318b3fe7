package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/studyai-go/internal/ingestion"
	"github.com/54b3r/studyai-go/internal/retrieval"
	"github.com/54b3r/studyai-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown,
	// including waiting for running ingestion jobs.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one POST /api/ask request end to end (default: 3m).
	AskTimeout time.Duration
	// UploadsDir is the root holding one directory per session.
	UploadsDir string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers one question. *retrieval.Assembler satisfies it; tests
// inject a fake.
type asker interface {
	// Answer retrieves context for req and generates the explanation.
	Answer(ctx context.Context, req retrieval.Request) (retrieval.Answer, error)
}

// ingester runs the ingestion pipeline over one session directory.
// *ingestion.Pipeline satisfies it.
type ingester interface {
	// Ingest processes every PDF in sessionDir.
	Ingest(ctx context.Context, sessionDir string, progress func(msg string)) (ingestion.Report, error)
}

// Handlers are the pipelines the server exposes.
type Handlers struct {
	// Asker answers questions. Required.
	Asker asker
	// Ingester runs ingestion jobs. Required.
	Ingester ingester
	// Ledger lists per-file outcomes. Optional; GET .../files returns 501
	// without it.
	Ledger store.Ledger
}

// Server is the HTTP server that exposes the study assistant pipelines.
type Server struct {
	// asker answers POST /api/ask.
	asker asker
	// ingester runs background jobs started by POST .../ingest.
	ingester ingester
	// ledger backs GET .../files. May be nil.
	ledger store.Ledger
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics for this server instance.
	metrics *serverMetrics
	// jobs tracks the latest ingestion job per session.
	jobs *jobTracker
	// jobsCtx is the parent context of background jobs; cancelled on shutdown.
	jobsCtx context.Context
	// cancelJobs cancels jobsCtx.
	cancelJobs context.CancelFunc
	// jobsWG waits for background jobs during shutdown.
	jobsWG sync.WaitGroup
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the student's question.
	Question string `json:"question"`
	// Session scopes the first search stage. Optional.
	Session string `json:"session,omitempty"`
	// Language selects the response language (english, hindi, telugu).
	Language string `json:"language,omitempty"`
	// Guidance overrides the session's teacher review file. Optional.
	Guidance *guidanceBody `json:"guidance,omitempty"`
}

// guidanceBody is the inline teacher guidance accepted by POST /api/ask.
type guidanceBody struct {
	// AssessmentFocus describes the evaluation style.
	AssessmentFocus string `json:"assessment_focus"`
	// StudentGaps lists knowledge gaps to prioritize.
	StudentGaps string `json:"student_gaps"`
	// DocumentText is free-form guidance.
	DocumentText string `json:"document_text"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the generated explanation.
	Answer string `json:"answer"`
	// Stage is "session", "global", or empty when nothing was retrieved.
	Stage string `json:"stage,omitempty"`
	// Sources describes the records placed in the prompt.
	Sources []sourceRef `json:"sources"`
}

// sourceRef identifies one retrieved record.
type sourceRef struct {
	// Source is the PDF file name.
	Source string `json:"source"`
	// Session is the session the record belongs to.
	Session string `json:"session"`
	// Topic is the topic title the record was cut from.
	Topic string `json:"topic"`
	// Score is the similarity to the question.
	Score float32 `json:"score"`
}

// fileResponse is one ledger row returned by GET /api/sessions/{session}/files.
type fileResponse struct {
	// Source is the PDF file name.
	Source string `json:"source"`
	// Outcome is the latest ingestion result.
	Outcome string `json:"outcome"`
	// Reason explains non-ingested outcomes.
	Reason string `json:"reason,omitempty"`
	// Topics is the number of topics segmented.
	Topics int `json:"topics"`
	// Records is the number of records written.
	Records int `json:"records"`
	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time `json:"updatedAt"`
}
