package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(5).Do(t.Context(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempts  int
		wantCalls int
	}{
		{attempts: 1, wantCalls: 1},
		{attempts: 5, wantCalls: 5},
		{attempts: 0, wantCalls: 1},
	}

	for _, tc := range tests {
		calls := 0
		var retries []int
		p := fastPolicy(tc.attempts)
		p.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }

		err := p.Do(t.Context(), func(context.Context) error {
			calls++
			return errFlaky
		})
		if !errors.Is(err, errFlaky) {
			t.Errorf("attempts=%d: Do() error = %v, want %v", tc.attempts, err, errFlaky)
		}
		if calls != tc.wantCalls {
			t.Errorf("attempts=%d: calls = %d, want %d", tc.attempts, calls, tc.wantCalls)
		}
		if len(retries) != tc.wantCalls-1 {
			t.Errorf("attempts=%d: OnRetry called %d times, want %d", tc.attempts, len(retries), tc.wantCalls-1)
		}
	}
}

func TestDo_PermanentStops(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(5).Do(t.Context(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("Do() error = %v, want %v", err, errFlaky)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetryablePredicate(t *testing.T) {
	t.Parallel()

	errFatal := errors.New("fatal")
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }

	calls := 0
	err := p.Do(t.Context(), func(context.Context) error {
		calls++
		if calls == 2 {
			return errFatal
		}
		return errFlaky
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("Do() error = %v, want %v", err, errFatal)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	p := Policy{MaxAttempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	if err == nil {
		t.Fatal("Do() expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()

	in := Ingestion()
	if in.MaxAttempts != 10 || in.InitialInterval != 4*time.Second || in.MaxInterval != 60*time.Second {
		t.Errorf("Ingestion() = %+v", in)
	}
	ans := Answer()
	if ans.MaxAttempts != 5 || ans.InitialInterval != 2*time.Second || ans.MaxInterval != 10*time.Second {
		t.Errorf("Answer() = %+v", ans)
	}
}
