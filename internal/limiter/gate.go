// Package limiter provides the process-wide gate that bounds concurrent
// calls to the generation service. One Gate is constructed at startup and
// injected into every client that talks to the model, so the bound holds
// across all ingestion workers and request handlers together.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultSize is the default number of concurrent generation calls.
const DefaultSize = 3

// Gate bounds the number of in-flight calls and, optionally, the rate at
// which new calls may start. It is safe for concurrent use.
type Gate struct {
	// sem bounds concurrency.
	sem *semaphore.Weighted

	// limiter paces call starts; nil when no per-minute ceiling is set.
	limiter *rate.Limiter

	// size is the configured concurrency bound.
	size int64

	// inflight counts currently held permits.
	inflight atomic.Int64

	// peak is the highest inflight value observed.
	peak atomic.Int64
}

// New returns a Gate admitting at most size concurrent holders. When
// requestsPerMinute is positive, permit acquisition is additionally paced
// to that rate. A size below 1 selects DefaultSize.
func New(size int, requestsPerMinute int) *Gate {
	if size < 1 {
		size = DefaultSize
	}
	g := &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
	if requestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return g
}

// Acquire blocks until a permit is available or ctx is done. On success it
// returns a release function that must be called exactly once; calling it
// more than once is a no-op.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("limiter: rate wait: %w", err)
		}
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("limiter: acquire: %w", err)
	}

	n := g.inflight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inflight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Size returns the concurrency bound.
func (g *Gate) Size() int {
	return int(g.size)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inflight.Load())
}

// Peak returns the highest number of simultaneously held permits observed
// since the gate was created.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
