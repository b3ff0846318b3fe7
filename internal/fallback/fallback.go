// Package fallback runs an explicit, ordered list of alternative steps and
// returns the first non-empty result. Whether a failing step ends the chain
// or is skipped is a property of the chain, not of the steps.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is one alternative in a chain.
type Step[T any] struct {
	// Name identifies the step in logs and results.
	Name string

	// Run produces the step's items.
	Run func(ctx context.Context) ([]T, error)
}

// Chain is an ordered list of steps.
type Chain[T any] struct {
	// Steps are tried in order until one yields at least one item.
	Steps []Step[T]

	// AbsorbErrors makes a failing step behave like an empty one: the error
	// is recorded and the next step runs. When false, the first error ends
	// the chain and is returned.
	AbsorbErrors bool

	// Logger receives a warning for every absorbed error. Nil selects
	// slog.Default.
	Logger *slog.Logger
}

// Result is the outcome of running a chain.
type Result[T any] struct {
	// Items are the first non-empty items produced, or nil.
	Items []T

	// Step is the name of the step that produced Items, or "" when every
	// step came back empty.
	Step string

	// Errors are the absorbed step errors, in step order.
	Errors []error
}

// Err joins the absorbed errors, returning nil when there were none.
func (r Result[T]) Err() error {
	return errors.Join(r.Errors...)
}

// Run executes the chain. It stops at the first step that returns items.
// A cancelled context always ends the chain with the context error.
func (c Chain[T]) Run(ctx context.Context) (Result[T], error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var res Result[T]
	for _, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			return res, err //nolint:wrapcheck // context errors are returned as-is
		}
		items, err := step.Run(ctx)
		if err != nil {
			if !c.AbsorbErrors {
				return res, fmt.Errorf("fallback: step %q: %w", step.Name, err)
			}
			logger.Warn("fallback: step failed",
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
			)
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		if len(items) > 0 {
			res.Items = items
			res.Step = step.Name
			return res, nil
		}
	}
	return res, nil
}
