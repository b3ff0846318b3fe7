// Package summarize produces one retrieval-friendly summary per multimodal
// chunk by sending batches of chunks, with their tables and images, to the
// generation service.
//
// The output always has exactly one entry per input chunk. When a batch
// cannot be summarized, each of its chunks falls back to its own raw text.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/studyai-go/internal/chunk"
	"github.com/54b3r/studyai-go/internal/metrics"
)

const (
	// DefaultBatchSize is the number of chunks summarized per call.
	DefaultBatchSize = 5
	// DefaultWorkers is the number of batches summarized concurrently.
	DefaultWorkers = 2
)

// instruction opens every batch request.
const instruction = "You are an expert at analyzing mixed-content chunks from technical documents for a RAG system.\n" +
	"Below are several content blocks. For each block, provide a concise summary that captures " +
	"the key facts, concepts, and data. Respond with a JSON array of strings, where each string " +
	"is the summary for the corresponding block.\n\n"

// Generator sends a message list to the generation service and returns the
// response text. llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Config tunes batching. Zero values select the defaults.
type Config struct {
	// BatchSize is the number of chunks per generation call.
	BatchSize int

	// Workers bounds the number of batches in flight from this summarizer.
	// The process-wide gate still bounds the total across callers.
	Workers int
}

// Summarizer batches chunks and summarizes them concurrently.
type Summarizer struct {
	// gen issues the generation calls.
	gen Generator

	// cfg holds the resolved batch settings.
	cfg Config

	// metrics records fallbacks. May be nil.
	metrics *metrics.Pipeline

	// logger receives fallback warnings.
	logger *slog.Logger
}

// New returns a Summarizer. gen must not be nil.
func New(gen Generator, cfg Config, m *metrics.Pipeline, logger *slog.Logger) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("summarize: generator must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{gen: gen, cfg: cfg, metrics: m, logger: logger}, nil
}

// Eligible returns the indices of chunks that carry more than one content
// kind and therefore need a summary.
func Eligible(chunks []chunk.Chunk) []int {
	var idx []int
	for i, c := range chunks {
		if c.Multimodal() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Summarize returns one summary per chunk, in input order. Batches run
// concurrently up to the configured worker count; a failed batch falls back
// to the raw text of its chunks without affecting other batches.
func (s *Summarizer) Summarize(ctx context.Context, chunks []chunk.Chunk) []string {
	out := make([]string, len(chunks))
	if len(chunks) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]
		dst := out[start:end]
		g.Go(func() error {
			copy(dst, s.summarizeBatch(ctx, batch))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// summarizeBatch summarizes one batch, falling back to raw text on any
// generation or parse failure.
func (s *Summarizer) summarizeBatch(ctx context.Context, batch []chunk.Chunk) []string {
	resp, err := s.gen.Generate(ctx, []*schema.Message{BuildMessage(batch)})
	if err != nil {
		s.metrics.SummaryFallback("generation")
		s.logger.Warn("summarize: batch generation failed, using raw text",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		return rawTexts(batch)
	}

	summaries, err := ParseSummaries(resp, len(batch))
	if err != nil {
		s.metrics.SummaryFallback("parse")
		s.logger.Warn("summarize: unexpected summary format, using raw text",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		return rawTexts(batch)
	}
	return summaries
}

// BuildMessage composes the multimodal user message for a batch: the
// instruction, one text part per block, and each block's images as inline
// JPEG data URLs following its text.
func BuildMessage(batch []chunk.Chunk) *schema.Message {
	parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: instruction}}

	for i, c := range batch {
		var b strings.Builder
		fmt.Fprintf(&b, "--- BLOCK %d ---\nTEXT:\n%s\n", i+1, c.Text)
		if len(c.Tables) > 0 {
			fmt.Fprintf(&b, "TABLES:\n%s\n", strings.Join(c.Tables, "\n"))
		}
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: b.String()})

		for _, img := range c.Images {
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + img,
				},
			})
		}
	}

	return &schema.Message{
		Role:         schema.User,
		MultiContent: parts, //nolint:staticcheck // SA1019: UserInputMultiContent is not supported by every eino-ext provider yet
	}
}

// ParseSummaries decodes a model response into exactly want summaries.
// Markdown code fences around the JSON are removed. Items that are not
// strings are kept as their JSON text.
func ParseSummaries(resp string, want int) ([]string, error) {
	body := stripFences(resp)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("summarize: response is not a JSON array: %w", err)
	}
	if len(items) != want {
		return nil, fmt.Errorf("summarize: got %d summaries for %d blocks", len(items), want)
	}

	out := make([]string, len(items))
	for i, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[i] = s
			continue
		}
		out[i] = string(raw)
	}
	return out, nil
}

// stripFences removes a surrounding ```json or ``` fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func rawTexts(batch []chunk.Chunk) []string {
	out := make([]string, len(batch))
	for i, c := range batch {
		out[i] = c.Text
	}
	return out
}
