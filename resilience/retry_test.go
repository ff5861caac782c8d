package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0.1,
		ShouldRetry:    ChartAPIRetryable,
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	res, err := Run(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Value != "ok" || res.Attempts != 1 {
		t.Fatalf("Run = %+v, want value ok after 1 attempt", res)
	}
}

func TestRunRetriesServerErrorsUntilExhausted(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{StatusCode: http.StatusServiceUnavailable}
	})

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", exhausted.Attempts)
	}
	if calls != 3 {
		t.Fatalf("op invoked %d times, want 3", calls)
	}
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("last error status = %d, want 503", StatusCode(err))
	}
}

func TestRunAlwaysRetryPredicateExhaustsAttempts(t *testing.T) {
	p := fastPolicy(3)
	var seen []int
	p.ShouldRetry = func(_ error, attempt int) bool {
		seen = append(seen, attempt)
		return true
	}

	errBoom := errors.New("boom")
	calls := 0
	_, err := Run(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	})

	if calls != 3 {
		t.Fatalf("op invoked %d times, want 3", calls)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 || !errors.Is(err, errBoom) {
		t.Fatalf("exhausted = %+v, want 3 attempts wrapping the last error", exhausted)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("predicate consulted with attempts %v, want [1 2]", seen)
	}
}

func TestRunRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	res, err := Run(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &NetworkError{Err: errors.New("connection reset")}
		}
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Attempts != 2 || res.Value != "payload" {
		t.Fatalf("Run = %+v, want payload after 2 attempts", res)
	}
}

func TestRunDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{StatusCode: http.StatusNotFound}
	})
	if calls != 1 {
		t.Fatalf("op invoked %d times, want 1", calls)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want the 404 unwrapped", err)
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatalf("vetoed retry should not report exhaustion")
	}
}

func TestRunCapsRateLimitRetries(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, &HTTPError{StatusCode: http.StatusTooManyRequests}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != rateLimitAttempts {
		t.Fatalf("op invoked %d times, want %d", calls, rateLimitAttempts)
	}
}

func TestRunAttemptTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.AttemptTimeout = 20 * time.Millisecond

	calls := 0
	start := time.Now()
	_, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !IsTimeout(err) {
		t.Fatalf("error = %v, want timeout", err)
	}
	if calls != 2 {
		t.Fatalf("op invoked %d times, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run took %v, attempts were not bounded", elapsed)
	}
}

func TestRunInvokesOnRetryBeforeEachRetry(t *testing.T) {
	p := fastPolicy(3)
	var seen []int
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		if err == nil {
			t.Errorf("OnRetry got nil error")
		}
		if delay < 0 || delay > p.MaxDelay+p.MaxDelay/10 {
			t.Errorf("delay %v out of range", delay)
		}
		seen = append(seen, attempt)
	}

	_, _ = Run(context.Background(), p, func(context.Context) (int, error) {
		return 0, &HTTPError{StatusCode: http.StatusBadGateway}
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", seen)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(5)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, p, func(context.Context) (int, error) {
			calls++
			return 0, &HTTPError{StatusCode: http.StatusInternalServerError}
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if calls != 1 {
		t.Fatalf("op invoked %d times, want 1", calls)
	}
}

func TestPolicyBaseDelay(t *testing.T) {
	p := ChartAPIPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 0},
		{attempt: 2, want: time.Second},
		{attempt: 3, want: 2 * time.Second},
		{attempt: 4, want: 4 * time.Second},
		{attempt: 5, want: 8 * time.Second},
		{attempt: 6, want: 10 * time.Second},
		{attempt: 40, want: 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.BaseDelay(tt.attempt); got != tt.want {
			t.Fatalf("BaseDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyJitterBounds(t *testing.T) {
	p := ChartAPIPolicy()
	base := p.BaseDelay(3)

	near := func(got, want time.Duration) bool {
		diff := got - want
		return diff > -time.Microsecond && diff < time.Microsecond
	}
	if got := p.jittered(base, 0); !near(got, base-base/10) {
		t.Fatalf("low jitter = %v, want %v", got, base-base/10)
	}
	if got := p.jittered(base, 0.5); !near(got, base) {
		t.Fatalf("mid jitter = %v, want %v", got, base)
	}
	for i := 0; i < 100; i++ {
		d := p.Delay(3)
		if d < base-base/10-time.Microsecond || d > base+base/10 {
			t.Fatalf("Delay(3) = %v outside ±10%% of %v", d, base)
		}
	}

	p.JitterFraction = 1
	if got := p.jittered(base, 0); got != 0 {
		t.Fatalf("full negative jitter = %v, want 0", got)
	}
}

func TestRetryPredicates(t *testing.T) {
	timeout := &OperationTimeoutError{Timeout: time.Second}
	network := &NetworkError{Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}

	tests := []struct {
		name    string
		pred    func(error, int) bool
		err     error
		attempt int
		want    bool
	}{
		{name: "chart 500", pred: ChartAPIRetryable, err: &HTTPError{StatusCode: 500}, attempt: 1, want: true},
		{name: "chart 400", pred: ChartAPIRetryable, err: &HTTPError{StatusCode: 400}, attempt: 1, want: false},
		{name: "chart 429 early", pred: ChartAPIRetryable, err: &HTTPError{StatusCode: 429}, attempt: 2, want: true},
		{name: "chart 429 late", pred: ChartAPIRetryable, err: &HTTPError{StatusCode: 429}, attempt: 3, want: false},
		{name: "chart timeout", pred: ChartAPIRetryable, err: timeout, attempt: 2, want: true},
		{name: "chart network", pred: ChartAPIRetryable, err: network, attempt: 2, want: true},
		{name: "chart other", pred: ChartAPIRetryable, err: errors.New("invalid character"), attempt: 1, want: false},
		{name: "catalog 429", pred: CatalogAPIRetryable, err: &HTTPError{StatusCode: 429}, attempt: 9, want: true},
		{name: "catalog 404", pred: CatalogAPIRetryable, err: &HTTPError{StatusCode: 404}, attempt: 1, want: false},
		{name: "catalog 503", pred: CatalogAPIRetryable, err: &HTTPError{StatusCode: 503}, attempt: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err, tt.attempt); got != tt.want {
				t.Fatalf("predicate(%v, %d) = %v, want %v", tt.err, tt.attempt, got, tt.want)
			}
		})
	}
}
