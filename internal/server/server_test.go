package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/studyai-go/internal/ingestion"
	"github.com/54b3r/studyai-go/internal/retrieval"
	"github.com/54b3r/studyai-go/internal/store"
)

// fakeAsker implements the asker interface for tests.
type fakeAsker struct {
	// answer is returned on success.
	answer retrieval.Answer
	// err is returned when non-nil.
	err error

	mu sync.Mutex
	// got records the last request.
	got retrieval.Request
}

func (f *fakeAsker) Answer(_ context.Context, req retrieval.Request) (retrieval.Answer, error) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
	return f.answer, f.err
}

// fakeIngester implements the ingester interface. When release is non-nil
// Ingest blocks until it is closed.
type fakeIngester struct {
	// report is returned by Ingest.
	report ingestion.Report
	// err is returned by Ingest.
	err error
	// release gates completion when non-nil.
	release chan struct{}

	mu sync.Mutex
	// dirs records every directory ingested.
	dirs []string
}

func (f *fakeIngester) Ingest(ctx context.Context, dir string, progress func(string)) (ingestion.Report, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()
	progress("bio.pdf: ingested")
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ingestion.Report{}, ctx.Err()
		}
	}
	return f.report, f.err
}

// fakeLedger is an in-memory store.Ledger.
type fakeLedger struct {
	// rows is returned by List.
	rows []store.FileRecord
	// err is returned by List.
	err error
}

func (l *fakeLedger) Record(context.Context, store.FileRecord) error { return nil }
func (l *fakeLedger) List(_ context.Context, session string) ([]store.FileRecord, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []store.FileRecord
	for _, r := range l.rows {
		if r.Session == session {
			out = append(out, r)
		}
	}
	return out, nil
}
func (l *fakeLedger) Close() error { return nil }

// newTestServer builds a *Server around the given handlers with an
// isolated metrics registry and a discarding logger.
func newTestServer(t *testing.T, h Handlers, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = defaultTestAskTimeout
	}
	s := newServer(h, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		s.cancelJobs()
		s.jobsWG.Wait()
	})
	return s, reg
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Handlers{Ingester: &fakeIngester{}}, nil); err == nil {
		t.Error("New() without asker should fail")
	}
	if _, err := New(Handlers{Asker: &fakeAsker{}}, nil); err == nil {
		t.Error("New() without ingester should fail")
	}

	reg := prometheus.NewRegistry()
	s, err := New(Handlers{Asker: &fakeAsker{}, Ingester: &fakeIngester{}}, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		s.stopRL()
		s.cancelJobs()
	})
	if s.httpServer.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q, want default 127.0.0.1:8080", s.httpServer.Addr)
	}
	if s.cfg.UploadsDir != "uploads" {
		t.Errorf("UploadsDir = %q, want uploads", s.cfg.UploadsDir)
	}
}
