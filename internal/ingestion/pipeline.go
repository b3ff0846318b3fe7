// Package ingestion implements the study-material ingestion pipeline.
// For every PDF in a session directory it validates the file, skips files
// already indexed for the session, partitions the document into elements,
// groups them into topics, assembles size-bounded chunks, summarizes the
// multimodal ones, and finally embeds and upserts every record in one
// write. This pipeline is invoked by `studyai ingest` and the HTTP API.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/54b3r/studyai-go/internal/chunk"
	"github.com/54b3r/studyai-go/internal/document"
	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/metrics"
	"github.com/54b3r/studyai-go/internal/rag"
	"github.com/54b3r/studyai-go/internal/store"
	"github.com/54b3r/studyai-go/internal/topic"
)

// DefaultEmbedBatchSize is the number of records embedded per call.
const DefaultEmbedBatchSize = 32

// Partitioner extracts elements from a PDF. partition.Chain satisfies it.
// An empty result means no content; its error only explains why.
type Partitioner interface {
	Partition(ctx context.Context, path string) ([]document.Element, error)
}

// Summarizer returns one summary per chunk. summarize.Summarizer satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []chunk.Chunk) []string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunk holds the chunk assembler thresholds.
	Chunk chunk.Config

	// EmbedBatchSize is the number of records per embedding call.
	// Defaults to DefaultEmbedBatchSize if zero.
	EmbedBatchSize int
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	// Partitioner extracts document elements. Required.
	Partitioner Partitioner

	// Summarizer summarizes multimodal chunks. Required.
	Summarizer Summarizer

	// Embedder converts record content into vectors. Required.
	Embedder rag.Embedder

	// Store persists the records and answers the checkpoint query. Required.
	Store rag.VectorStore

	// Ledger records per-file outcomes. Optional.
	Ledger store.Ledger

	// Metrics records file outcomes and record counts. Optional.
	Metrics *metrics.Pipeline
}

// FileResult is the outcome of one file in a run.
type FileResult struct {
	// Source is the file's base name.
	Source string
	// Outcome is what happened to the file.
	Outcome store.Outcome
	// Reason explains non-ingested outcomes.
	Reason string
	// Topics is the number of topics segmented.
	Topics int
	// Records is the number of records built.
	Records int
}

// Report summarizes one ingestion run.
type Report struct {
	// Session is the session id derived from the directory name.
	Session string
	// Files holds one result per candidate file, in processing order.
	Files []FileResult
	// Records is the number of records written to the vector store.
	Records int
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Count returns the number of files with outcome o.
func (r Report) Count(o store.Outcome) int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome == o {
			n++
		}
	}
	return n
}

// Pipeline orchestrates validate → checkpoint → partition → segment →
// chunk → summarize → embed → upsert for one session directory.
type Pipeline struct {
	// deps are the injected collaborators.
	deps Dependencies

	// assembler cuts topics into chunks.
	assembler *chunk.Assembler

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(deps Dependencies, cfg Config) (*Pipeline, error) {
	if deps.Partitioner == nil {
		return nil, fmt.Errorf("ingestion: partitioner must not be nil")
	}
	if deps.Summarizer == nil {
		return nil, fmt.Errorf("ingestion: summarizer must not be nil")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &Pipeline{deps: deps, cfg: cfg}, nil
}

// Ingest processes every PDF in sessionDir. Files are handled sequentially;
// a file that fails validation or yields no content is recorded and
// skipped. Embedding and vector store write failures abort the run and are
// returned together with the report built so far. Progress is reported via
// the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sessionDir string, progress func(msg string)) (Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	start := time.Now()

	session, err := sessionID(sessionDir)
	if err != nil {
		return Report{}, err
	}
	report := Report{Session: session}
	logger := logging.FromContext(ctx).With(slog.String("session", session))
	assembler := chunk.NewAssembler(p.cfg.Chunk, logger)

	files, err := candidates(sessionDir)
	if err != nil {
		return report, err
	}
	logger.Info("ingestion: run started", slog.Int("files", len(files)))

	var pending []rag.Document
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingestion: %w", err)
		}
		progress(fmt.Sprintf("processing %d/%d: %s", i+1, len(files), name))

		fileLog := logger.With(slog.String("source", name))
		res, docs := p.processFile(logging.WithLogger(ctx, fileLog), assembler, session, filepath.Join(sessionDir, name))
		fileLog.Info("ingestion: file processed",
			slog.String("outcome", string(res.Outcome)),
			slog.Int("topics", res.Topics),
			slog.Int("records", res.Records),
		)
		progress(fmt.Sprintf("%s: %s (%d records)", name, res.Outcome, res.Records))

		report.Files = append(report.Files, res)
		pending = append(pending, docs...)
	}

	if len(pending) > 0 {
		progress(fmt.Sprintf("embedding %d records", len(pending)))
		if err := p.write(ctx, pending); err != nil {
			for i := range report.Files {
				if report.Files[i].Outcome == store.OutcomeIngested {
					report.Files[i].Outcome = store.OutcomeFailed
					report.Files[i].Reason = err.Error()
				}
			}
			p.finish(ctx, logger, &report)
			report.Duration = time.Since(start)
			return report, err
		}
		report.Records = len(pending)
		p.deps.Metrics.IngestRecords(len(pending))
	}

	p.finish(ctx, logger, &report)
	report.Duration = time.Since(start)
	logger.Info("ingestion: run complete",
		slog.Int("ingested", report.Count(store.OutcomeIngested)),
		slog.Int("skipped", report.Count(store.OutcomeSkipped)),
		slog.Int("records", report.Records),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// processFile runs one file through the stages that may fail locally.
func (p *Pipeline) processFile(ctx context.Context, assembler *chunk.Assembler, session, path string) (FileResult, []rag.Document) {
	logger := logging.FromContext(ctx)
	name := filepath.Base(path)
	res := FileResult{Source: name}

	if err := document.ValidatePDF(path); err != nil {
		res.Outcome, res.Reason = store.OutcomeInvalid, err.Error()
		if !errors.Is(err, document.ErrNotPDF) {
			res.Outcome = store.OutcomeFailed
		}
		logger.Warn("ingestion: file rejected", slog.String("error", err.Error()))
		return res, nil
	}

	exists, err := p.deps.Store.Exists(ctx, rag.Filter{Session: session, Source: name})
	if err != nil {
		logger.Warn("ingestion: checkpoint lookup failed, processing file", slog.String("error", err.Error()))
	}
	if exists {
		res.Outcome, res.Reason = store.OutcomeSkipped, "already indexed for this session"
		return res, nil
	}

	elements, err := p.deps.Partitioner.Partition(ctx, path)
	if len(elements) == 0 {
		res.Outcome, res.Reason = store.OutcomeEmpty, "no elements extracted"
		if err != nil {
			res.Reason = err.Error()
		}
		return res, nil
	}

	topics := topic.Segment(elements)
	res.Topics = len(topics)

	var docs []rag.Document
	for ti, t := range topics {
		chunks := assembler.Assemble(t)
		summaries := p.summarize(ctx, chunks)
		for ci, c := range chunks {
			doc, err := BuildRecord(session, name, ti, c, summaries[ci])
			if err != nil {
				logger.Warn("ingestion: dropping chunk", slog.String("topic", t.Title), slog.String("error", err.Error()))
				continue
			}
			docs = append(docs, doc)
		}
	}

	res.Records = len(docs)
	if len(docs) == 0 {
		res.Outcome, res.Reason = store.OutcomeEmpty, "no chunks assembled"
		return res, nil
	}
	res.Outcome = store.OutcomeIngested
	return res, docs
}

// summarize returns a summary slot per chunk, filled only for multimodal
// chunks.
func (p *Pipeline) summarize(ctx context.Context, chunks []chunk.Chunk) []string {
	out := make([]string, len(chunks))
	idx := make([]int, 0, len(chunks))
	batch := make([]chunk.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if c.Multimodal() {
			idx = append(idx, i)
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 {
		return out
	}
	logging.FromContext(ctx).Debug("ingestion: summarizing multimodal chunks",
		slog.String("topic", batch[0].Topic),
		slog.Int("chunks", len(batch)),
	)
	for j, s := range p.deps.Summarizer.Summarize(ctx, batch) {
		if j < len(idx) {
			out[idx[j]] = s
		}
	}
	return out
}

// write embeds docs in batches and upserts them in a single call.
func (p *Pipeline) write(ctx context.Context, docs []rag.Document) error {
	embeddings := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vecs, err := p.deps.Embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		embeddings = append(embeddings, vecs...)
	}
	if err := p.deps.Store.Upsert(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("ingestion: upsert failed: %w", err)
	}
	return nil
}

// finish records file outcomes in the ledger and metrics. Ledger failures
// are logged; they never fail a run.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, report *Report) {
	for _, f := range report.Files {
		p.deps.Metrics.IngestFile(string(f.Outcome))
		if p.deps.Ledger == nil {
			continue
		}
		rec := store.FileRecord{
			Session: report.Session,
			Source:  f.Source,
			Outcome: f.Outcome,
			Reason:  f.Reason,
			Topics:  f.Topics,
			Records: f.Records,
		}
		if err := p.deps.Ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("ingestion: ledger write failed", slog.String("source", f.Source), slog.String("error", err.Error()))
		}
	}
}

// candidates returns the PDF file names in dir, sorted.
func candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read session directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && document.IsPDFName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// sessionID derives the session id from the directory name. Relative paths
// such as "." are resolved first so the id is the real folder name.
func sessionID(sessionDir string) (string, error) {
	abs, err := filepath.Abs(sessionDir)
	if err != nil {
		return "", fmt.Errorf("ingestion: resolve %s: %w", sessionDir, err)
	}
	session := filepath.Base(abs)
	if err := guidance.ValidateSession(session); err != nil {
		return "", fmt.Errorf("ingestion: %w", err)
	}
	return session, nil
}
