// Package server implements the HTTP API of the study assistant: question
// answering, background session ingestion, ledger inspection, health probes
// and Prometheus metrics. It is started by the `studyai serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/studyai-go/internal/logging"
)

// New constructs a Server from the provided handlers and config.
func New(h Handlers, cfg *Config) (*Server, error) {
	if h.Asker == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if h.Ingester == nil {
		return nil, fmt.Errorf("server: ingester must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Must cover a full answer generation including retries.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 3 * time.Minute
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := newServer(h, cfg, log)

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", rl.middleware("ask", http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/sessions/{session}/ingest", rl.middleware("ingest", http.HandlerFunc(s.handleIngest)))
	mux.HandleFunc("GET /api/sessions/{session}/ingest", s.handleJobStatus)
	mux.HandleFunc("GET /api/sessions/{session}/files", s.handleFiles)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// newServer builds the Server state shared by New and tests.
func newServer(h Handlers, cfg *Config, log *slog.Logger) *Server {
	jobsCtx, cancel := context.WithCancel(logging.WithLogger(context.Background(), log))
	return &Server{
		asker:      h.Asker,
		ingester:   h.Ingester,
		ledger:     h.Ledger,
		cfg:        cfg,
		log:        log,
		pingers:    cfg.Pingers,
		metrics:    newServerMetrics(cfg.MetricsRegistry),
		jobs:       newJobTracker(),
		jobsCtx:    jobsCtx,
		cancelJobs: cancel,
	}
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("studyai server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cancelJobs()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.cancelJobs()
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		if !s.waitJobs(shutdownCtx) {
			s.log.Warn("server: cancelling unfinished ingestion jobs")
			s.cancelJobs()
			s.jobsWG.Wait()
		}
		s.cancelJobs()
		return nil
	}
}

// waitJobs waits for background jobs until ctx ends. It reports whether
// every job finished.
func (s *Server) waitJobs(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.jobsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
