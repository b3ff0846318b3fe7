package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/rag"
	"github.com/54b3r/studyai-go/internal/retrieval"
)

// maxAskBody caps the POST /api/ask request body.
const maxAskBody = 1 << 20

// handleAsk handles POST /api/ask. It runs the two-stage retrieval and a
// single answer generation, returning the explanation with its sources.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody)).Decode(&req); err != nil {
		s.metrics.observeAsk("bad_request", "", start)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	ans, err := s.asker.Answer(ctx, retrieval.Request{
		Query:    req.Question,
		Session:  req.Session,
		Language: req.Language,
		Guidance: req.Guidance.toGuidance(),
	})
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery):
		s.metrics.observeAsk("bad_request", "", start)
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	case errors.Is(err, guidance.ErrInvalidSession):
		s.metrics.observeAsk("bad_request", "", start)
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.observeAsk("timeout", "", start)
		log.Warn("ask timed out", slog.Duration("timeout", s.cfg.AskTimeout))
		http.Error(w, "answer generation timed out", http.StatusGatewayTimeout)
		return
	case err != nil:
		s.metrics.observeAsk("error", "", start)
		log.Error("ask failed", slog.Any("error", err))
		http.Error(w, "failed to generate answer", http.StatusBadGateway)
		return
	}

	outcome := "answered"
	if ans.Stage == "" {
		outcome = "no_information"
	}
	s.metrics.observeAsk(outcome, ans.Stage, start)

	writeJSON(w, r, http.StatusOK, askResponse{
		Answer:  ans.Response,
		Stage:   ans.Stage,
		Sources: sourceRefs(ans.Sources),
	})
}

// toGuidance converts the inline body; nil stays nil so the session file
// is consulted.
func (g *guidanceBody) toGuidance() *guidance.Guidance {
	if g == nil {
		return nil
	}
	return &guidance.Guidance{
		AssessmentFocus: g.AssessmentFocus,
		StudentGaps:     g.StudentGaps,
		DocumentText:    g.DocumentText,
	}
}

// sourceRefs summarizes retrieved documents for the response.
func sourceRefs(docs []rag.Document) []sourceRef {
	refs := make([]sourceRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, sourceRef{
			Source:  d.Source,
			Session: d.Metadata[rag.MetaSession],
			Topic:   d.Metadata[rag.MetaTopic],
			Score:   d.Score,
		})
	}
	return refs
}
