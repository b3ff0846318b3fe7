// Package partition turns a PDF file into an ordered sequence of typed
// document elements. Several partitioners can be chained in priority order
// (high-resolution with tables and images, then a fast text-only pass,
// then a local text extractor); a failing or empty attempt falls through
// to the next one and never aborts ingestion.
package partition

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/54b3r/studyai-go/internal/document"
	"github.com/54b3r/studyai-go/internal/fallback"
)

// Strategy selects the partitioning quality/speed trade-off.
type Strategy string

const (
	// StrategyHiRes runs layout detection with table structure inference and
	// image block extraction.
	StrategyHiRes Strategy = "hi_res"
	// StrategyFast extracts text only.
	StrategyFast Strategy = "fast"
	// StrategyLocal extracts text with a locally installed tool.
	StrategyLocal Strategy = "local"
)

// Partitioner extracts elements from the PDF at path.
type Partitioner interface {
	Partition(ctx context.Context, path string, strategy Strategy) ([]document.Element, error)
}

// Attempt pairs a partitioner with the strategy to run it with.
type Attempt struct {
	// Partitioner does the work.
	Partitioner Partitioner

	// Strategy is passed through to the partitioner.
	Strategy Strategy
}

// Chain tries its attempts in order and returns the first non-empty result.
type Chain struct {
	// attempts are tried in order.
	attempts []Attempt

	// logger receives a warning for every failed attempt.
	logger *slog.Logger
}

// NewChain returns a Chain over attempts. At least one attempt is required.
func NewChain(logger *slog.Logger, attempts ...Attempt) (*Chain, error) {
	if len(attempts) == 0 {
		return nil, fmt.Errorf("partition: at least one attempt is required")
	}
	for i, a := range attempts {
		if a.Partitioner == nil {
			return nil, fmt.Errorf("partition: attempt %d partitioner must not be nil", i)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{attempts: attempts, logger: logger}, nil
}

// Partition runs the attempts in order. When every attempt fails or comes
// back empty it returns an empty slice together with the joined attempt
// errors (nil when all attempts simply found nothing). Callers treat both
// as "no content" for this file.
func (c *Chain) Partition(ctx context.Context, path string) ([]document.Element, error) {
	logger := c.logger.With(slog.String("source", filepath.Base(path)))

	steps := make([]fallback.Step[document.Element], 0, len(c.attempts))
	for _, a := range c.attempts {
		steps = append(steps, fallback.Step[document.Element]{
			Name: string(a.Strategy),
			Run: func(ctx context.Context) ([]document.Element, error) {
				return a.Partitioner.Partition(ctx, path, a.Strategy)
			},
		})
	}

	res, err := fallback.Chain[document.Element]{Steps: steps, AbsorbErrors: true, Logger: logger}.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	if res.Step != "" {
		logger.Debug("partition: elements extracted",
			slog.String("strategy", res.Step),
			slog.Int("elements", len(res.Items)),
		)
		return res.Items, nil
	}
	if soft := res.Err(); soft != nil {
		return []document.Element{}, fmt.Errorf("partition: every strategy failed: %w", soft)
	}
	return []document.Element{}, nil
}
