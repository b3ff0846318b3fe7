// Package retrieval answers a student's question from the indexed study
// material: it searches the session's documents (falling back to the whole
// collection), assembles a grounded prompt with language and teacher
// guidance directives, and makes exactly one generation call.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyai-go/internal/budget"
	"github.com/54b3r/studyai-go/internal/fallback"
	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/metrics"
	"github.com/54b3r/studyai-go/internal/rag"
)

// ErrEmptyQuery is returned when the question is blank.
var ErrEmptyQuery = errors.New("retrieval: query must not be empty")

// Search stage names, used in logs and metrics.
const (
	StageSession = "session"
	StageGlobal  = "global"
)

// Generator sends a message list to the generation service and returns the
// response text. llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Searcher embeds queries and runs MMR searches. rag.Retriever satisfies it.
type Searcher interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Search(ctx context.Context, vector []float32, p rag.SearchParams) ([]rag.Document, error)
}

// Config tunes retrieval. Zero values select the defaults.
type Config struct {
	// Session are the MMR parameters of the session-filtered search.
	// Defaults: K=8, FetchK=20, Lambda=0.5.
	Session rag.SearchParams

	// Global are the MMR parameters of the unfiltered fallback search.
	// Defaults: K=5, FetchK=10, Lambda=0.5.
	Global rag.SearchParams

	// MaxContextTokens bounds the estimated prompt size. Lowest-ranked
	// source blocks are dropped to fit.
	MaxContextTokens int

	// UploadsDir is the root holding one directory per session, where the
	// teacher guidance file is looked up. Empty disables guidance files.
	UploadsDir string
}

func (c Config) withDefaults() Config {
	c.Session = searchDefaults(c.Session, 8, 20)
	c.Global = searchDefaults(c.Global, 5, 10)
	c.Session.Filter, c.Global.Filter = nil, nil
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return c
}

func searchDefaults(p rag.SearchParams, k, fetchK int) rag.SearchParams {
	if p.K <= 0 {
		p.K = k
	}
	if p.FetchK <= 0 {
		p.FetchK = fetchK
	}
	if p.FetchK < p.K {
		p.FetchK = p.K
	}
	if p.Lambda <= 0 || p.Lambda > 1 {
		p.Lambda = 0.5
	}
	return p
}

// Request is one question.
type Request struct {
	// Query is the student's question.
	Query string

	// Session scopes the first search stage and locates the guidance file.
	// Empty searches the whole collection.
	Session string

	// Language selects the response language; unknown values mean English.
	Language string

	// Guidance overrides the session's guidance file when non-nil.
	Guidance *guidance.Guidance
}

// Answer is the result of one question.
type Answer struct {
	// Response is the generated explanation or NoInformationResponse.
	Response string

	// Stage names the search stage that supplied the context, "" when none did.
	Stage string

	// Sources are the retrieved documents actually placed in the prompt.
	Sources []rag.Document
}

// Assembler runs the retrieval pipeline.
type Assembler struct {
	// searcher embeds the query and queries the vector store.
	searcher Searcher

	// gen makes the single answer generation call.
	gen Generator

	// cfg holds the resolved settings.
	cfg Config

	// metrics records searches and answer outcomes. May be nil.
	metrics *metrics.Pipeline
}

// New returns an Assembler. searcher and gen must not be nil.
func New(searcher Searcher, gen Generator, cfg Config, m *metrics.Pipeline) (*Assembler, error) {
	if searcher == nil {
		return nil, fmt.Errorf("retrieval: searcher must not be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("retrieval: generator must not be nil")
	}
	return &Assembler{searcher: searcher, gen: gen, cfg: cfg.withDefaults(), metrics: m}, nil
}

// Answer retrieves context for req and generates the explanation. When no
// context is found it returns NoInformationResponse without calling the
// generator. Vector store and generation failures are returned.
func (a *Assembler) Answer(ctx context.Context, req Request) (Answer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Answer{}, ErrEmptyQuery
	}
	if req.Session != "" {
		if err := guidance.ValidateSession(req.Session); err != nil {
			return Answer{}, fmt.Errorf("retrieval: %w", err)
		}
	}

	logger := logging.FromContext(ctx).With(slog.String("session", req.Session))

	docs, stage, err := a.search(ctx, query, req.Session)
	if err != nil {
		a.metrics.Answer("error")
		return Answer{}, err
	}
	if len(docs) == 0 {
		logger.Info("retrieval: no context found")
		a.metrics.Answer("no_information")
		return Answer{Response: NoInformationResponse}, nil
	}

	guidanceBlock := a.loadGuidance(req, logger).Block()
	blocks := SourceBlocks(docs)
	fixed := budget.EstimateMessages(ComposePrompt(query, nil, req.Language, guidanceBlock))
	if n := budget.FitBlocks(fixed, blocks, a.cfg.MaxContextTokens); n < len(blocks) {
		logger.Warn("retrieval: context trimmed to fit token budget",
			slog.Int("kept", n),
			slog.Int("retrieved", len(blocks)),
			slog.Int("max_tokens", a.cfg.MaxContextTokens),
		)
		blocks, docs = blocks[:n], docs[:n]
	}

	logger.Debug("retrieval: generating answer",
		slog.String("stage", stage),
		slog.Int("sources", len(docs)),
		slog.String("language", NormalizeLanguage(req.Language)),
		slog.Bool("guidance", guidanceBlock != ""),
	)

	resp, err := a.gen.Generate(ctx, ComposePrompt(query, blocks, req.Language, guidanceBlock))
	if err != nil {
		a.metrics.Answer("error")
		return Answer{}, fmt.Errorf("retrieval: %w", err)
	}
	a.metrics.Answer("answered")
	return Answer{Response: resp, Stage: stage, Sources: docs}, nil
}

// search embeds the query once and runs the session stage then the global
// stage. The first non-empty stage wins; store errors end the chain.
func (a *Assembler) search(ctx context.Context, query, session string) ([]rag.Document, string, error) {
	vec, err := a.searcher.EmbedQuery(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("retrieval: %w", err)
	}

	stage := func(name string, p rag.SearchParams) fallback.Step[rag.Document] {
		return fallback.Step[rag.Document]{
			Name: name,
			Run: func(ctx context.Context) ([]rag.Document, error) {
				docs, err := a.searcher.Search(ctx, vec, p)
				if err == nil {
					a.metrics.RetrievalSearch(name, len(docs) > 0)
				}
				return docs, err
			},
		}
	}

	var steps []fallback.Step[rag.Document]
	if session != "" {
		p := a.cfg.Session
		p.Filter = &rag.Filter{Session: session}
		steps = append(steps, stage(StageSession, p))
	}
	steps = append(steps, stage(StageGlobal, a.cfg.Global))

	res, err := fallback.Chain[rag.Document]{Steps: steps, Logger: logging.FromContext(ctx)}.Run(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("retrieval: %w", err)
	}
	return res.Items, res.Step, nil
}

// loadGuidance returns the request override or the session's guidance file.
// An unreadable file is logged and ignored.
func (a *Assembler) loadGuidance(req Request, logger *slog.Logger) *guidance.Guidance {
	if req.Guidance != nil {
		return req.Guidance
	}
	if a.cfg.UploadsDir == "" || req.Session == "" {
		return nil
	}
	g, err := guidance.Load(a.cfg.UploadsDir, req.Session)
	if err != nil {
		logger.Warn("retrieval: ignoring teacher guidance", slog.String("error", err.Error()))
		return nil
	}
	return g
}
