// Package retry provides a reusable exponential-backoff retry policy for
// calls to external services. A Policy is a plain value: the same policy
// can wrap any number of independent operations.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration

	// Multiplier grows the wait after each failed attempt (default: 2).
	Multiplier float64

	// Retryable reports whether err should be retried. Nil retries every
	// error except context cancellation.
	Retryable func(err error) bool

	// OnRetry, when set, is called before each wait with the number of the
	// attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Ingestion is the policy for summarization calls during ingestion:
// 10 attempts, waiting from 4s up to 60s.
func Ingestion() Policy {
	return Policy{MaxAttempts: 10, InitialInterval: 4 * time.Second, MaxInterval: 60 * time.Second, Multiplier: 2}
}

// Answer is the policy for the single answer-generation call:
// 5 attempts, waiting from 2s up to 10s.
func Answer() Policy {
	return Policy{MaxAttempts: 5, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second, Multiplier: 2}
}

// Permanent wraps err so that Do returns it immediately without retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	// WithMaxRetries treats zero as unlimited, so a single attempt uses
	// StopBackOff instead.
	var b backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		b = backoff.WithMaxRetries(p.backOff(), uint64(attempts-1))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
	}

	return backoff.RetryNotify(operation, b, notify) //nolint:wrapcheck // callers wrap with their own context
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.MaxInterval = max(p.MaxInterval, b.InitialInterval)
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
