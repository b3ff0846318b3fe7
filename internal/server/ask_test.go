package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/rag"
	"github.com/54b3r/studyai-go/internal/retrieval"
)

// defaultTestAskTimeout keeps handler tests from waiting on real timeouts.
const defaultTestAskTimeout = 5 * time.Second

func postAsk(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleAsk(w, req)
	return w
}

func TestHandleAsk_Answered(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{answer: retrieval.Answer{
		Response: "Photosynthesis turns light into chemical energy.",
		Stage:    retrieval.StageSession,
		Sources: []rag.Document{{
			Source: "bio.pdf",
			Score:  0.91,
			Metadata: map[string]string{
				rag.MetaSession: "s1",
				rag.MetaTopic:   "1. Photosynthesis",
			},
		}},
	}}
	s, _ := newTestServer(t, Handlers{Asker: asker, Ingester: &fakeIngester{}}, nil)

	w := postAsk(t, s, `{"question":"what is photosynthesis?","session":"s1","language":"hindi",
		"guidance":{"assessment_focus":"MCQs"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != "session" || len(resp.Sources) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := resp.Sources[0]; got.Topic != "1. Photosynthesis" || got.Session != "s1" {
		t.Errorf("source = %+v", got)
	}

	if asker.got.Query != "what is photosynthesis?" || asker.got.Language != "hindi" {
		t.Errorf("request not forwarded: %+v", asker.got)
	}
	if asker.got.Guidance == nil || asker.got.Guidance.AssessmentFocus != "MCQs" {
		t.Errorf("guidance override not forwarded: %+v", asker.got.Guidance)
	}
}

func TestHandleAsk_NoGuidanceLeavesNil(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{answer: retrieval.Answer{Response: retrieval.NoInformationResponse}}
	s, _ := newTestServer(t, Handlers{Asker: asker, Ingester: &fakeIngester{}}, nil)

	w := postAsk(t, s, `{"question":"anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if asker.got.Guidance != nil {
		t.Error("guidance should be nil so the session file is consulted")
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != retrieval.NoInformationResponse || resp.Sources == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleAsk_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{"question":`, status: http.StatusBadRequest},
		{name: "empty question", body: `{"question":" "}`, err: retrieval.ErrEmptyQuery, status: http.StatusBadRequest},
		{
			name:   "invalid session",
			body:   `{"question":"q","session":"../etc"}`,
			err:    fmt.Errorf("retrieval: %w", guidance.ErrInvalidSession),
			status: http.StatusBadRequest,
		},
		{name: "timeout", body: `{"question":"q"}`, err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{name: "generation failure", body: `{"question":"q"}`, err: errors.New("llm: 503"), status: http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t, Handlers{Asker: &fakeAsker{err: tc.err}, Ingester: &fakeIngester{}}, nil)
			w := postAsk(t, s, tc.body)
			if w.Code != tc.status {
				t.Errorf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if strings.Contains(w.Body.String(), "llm: 503") {
				t.Error("internal error leaked to client")
			}
		})
	}
}
