// Package llm wraps an eino chat model with the process-wide concurrency
// gate, a retry policy and metrics. Every call to the generation service
// goes through a Client so the concurrency bound holds globally.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyai-go/internal/metrics"
	"github.com/54b3r/studyai-go/internal/retry"
)

// ErrEmptyResponse is returned when the model returns no message.
var ErrEmptyResponse = errors.New("llm: model returned no message")

// Gate bounds concurrent generation calls. Acquire returns a release
// function that must be called once the call completes.
type Gate interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Options configures a Client.
type Options struct {
	// Purpose labels metrics and logs (e.g. "summary", "answer").
	Purpose string

	// Policy is the retry policy applied to each Generate call.
	Policy retry.Policy

	// Metrics records attempts and retries. Nil disables metrics.
	Metrics *metrics.Pipeline

	// Logger receives retry warnings. Nil selects slog.Default.
	Logger *slog.Logger
}

// Client issues gated, retried generation calls.
type Client struct {
	// model is the underlying chat model.
	model model.BaseChatModel

	// gate is the shared concurrency gate.
	gate Gate

	// opts holds the resolved options.
	opts Options
}

// New returns a Client. model and gate must not be nil.
func New(m model.BaseChatModel, gate Gate, opts Options) (*Client, error) {
	if m == nil {
		return nil, fmt.Errorf("llm: model must not be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("llm: gate must not be nil")
	}
	if opts.Purpose == "" {
		opts.Purpose = "generate"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{model: m, gate: gate, opts: opts}, nil
}

// Generate sends msgs to the model and returns the response text. Each
// attempt holds a gate permit only while the model call is in flight;
// permits are never held across backoff waits.
func (c *Client) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	policy := c.opts.Policy
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.opts.Metrics.GenerationRetry(c.opts.Purpose)
		c.opts.Logger.Warn("llm: generation attempt failed, retrying",
			slog.String("purpose", c.opts.Purpose),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		if userOnRetry != nil {
			userOnRetry(attempt, err, wait)
		}
	}

	var out string
	err := policy.Do(ctx, func(ctx context.Context) error {
		text, err := c.attempt(ctx, msgs)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm: %s generation failed: %w", c.opts.Purpose, err)
	}
	return out, nil
}

// attempt performs one gated model call.
func (c *Client) attempt(ctx context.Context, msgs []*schema.Message) (string, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return "", retry.Permanent(err)
	}
	defer release()

	c.opts.Metrics.InflightAdd(1)
	defer c.opts.Metrics.InflightAdd(-1)

	start := time.Now()
	resp, err := c.model.Generate(ctx, msgs)
	if err == nil && resp == nil {
		err = ErrEmptyResponse
	}
	c.opts.Metrics.GenerationAttempt(c.opts.Purpose, time.Since(start).Seconds(), err)
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped once by Generate
	}
	return resp.Content, nil
}
