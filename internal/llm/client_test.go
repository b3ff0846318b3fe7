package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyai-go/internal/limiter"
	"github.com/54b3r/studyai-go/internal/retry"
)

// fakeModel is a scripted model.BaseChatModel.
type fakeModel struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*schema.Message, error)
}

func (f *fakeModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.fn(n)
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func fast(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, limiter.New(1, 0), Options{}); err == nil || !strings.Contains(err.Error(), "model must not be nil") {
		t.Errorf("New(nil model) error = %v", err)
	}
	if _, err := New(&fakeModel{}, nil, Options{}); err == nil || !strings.Contains(err.Error(), "gate must not be nil") {
		t.Errorf("New(nil gate) error = %v", err)
	}
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	m := &fakeModel{fn: func(call int) (*schema.Message, error) {
		if call < 3 {
			return nil, errors.New("503 unavailable")
		}
		return schema.AssistantMessage("hello", nil), nil
	}}
	gate := limiter.New(1, 0)
	c, err := New(m, gate, Options{Purpose: "test", Policy: fast(5)})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	got, err := c.Generate(t.Context(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("Generate() = %q, want hello", got)
	}
	if m.calls != 3 {
		t.Errorf("model calls = %d, want 3", m.calls)
	}
	if gate.InFlight() != 0 {
		t.Errorf("gate permits leaked: %d in flight", gate.InFlight())
	}
}

func TestGenerate_ExhaustedReleasesPermits(t *testing.T) {
	t.Parallel()

	m := &fakeModel{fn: func(int) (*schema.Message, error) { return nil, errors.New("boom") }}
	gate := limiter.New(1, 0)
	c, _ := New(m, gate, Options{Policy: fast(4)})

	if _, err := c.Generate(t.Context(), nil); err == nil {
		t.Fatal("Generate() expected error")
	}
	if m.calls != 4 {
		t.Errorf("model calls = %d, want 4", m.calls)
	}
	if gate.InFlight() != 0 {
		t.Errorf("gate permits leaked: %d in flight", gate.InFlight())
	}
}

func TestGenerate_NilResponse(t *testing.T) {
	t.Parallel()

	m := &fakeModel{fn: func(int) (*schema.Message, error) { return nil, nil }}
	c, _ := New(m, limiter.New(1, 0), Options{Policy: fast(1)})
	if _, err := c.Generate(t.Context(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Generate() error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_SharedGateBoundsBurst(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	m := &fakeModel{fn: func(int) (*schema.Message, error) {
		mu.Lock()
		active++
		maxSeen = max(maxSeen, active)
		mu.Unlock()
		time.Sleep(3 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return schema.AssistantMessage("ok", nil), nil
	}}

	gate := limiter.New(3, 0)
	summary, _ := New(m, gate, Options{Purpose: "summary", Policy: fast(1)})
	answer, _ := New(m, gate, Options{Purpose: "answer", Policy: fast(1)})

	var wg sync.WaitGroup
	for i := range 30 {
		c := summary
		if i%2 == 0 {
			c = answer
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Generate(t.Context(), nil); err != nil {
				t.Errorf("Generate() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen > 3 {
		t.Errorf("observed %d concurrent model calls, bound is 3", maxSeen)
	}
}
