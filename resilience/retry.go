package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Result is a successful Run outcome.
type Result[T any] struct {
	Value     T
	Attempts  int
	TotalTime time.Duration
}

// Run executes op until it succeeds, the policy stops retrying, or
// MaxAttempts is reached. Exhaustion returns *RetryExhaustedError; a
// ShouldRetry veto returns the last error as is.
func Run[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (Result[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p = p.normalized()
	start := time.Now()

	// retry-go drives the loop synchronously, so these need no locking.
	var (
		attempts int
		lastErr  error
		vetoed   bool
	)

	retrier := retry.NewWithData[T](
		retry.Context(ctx),
		retry.Attempts(uint(p.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if attempts >= p.MaxAttempts {
				return true
			}
			if p.ShouldRetry != nil && !p.ShouldRetry(err, attempts) {
				vetoed = true
				return false
			}
			return true
		}),
		retry.DelayType(func(_ uint, err error, _ retry.DelayContext) time.Duration {
			delay := p.Delay(attempts + 1)
			if p.OnRetry != nil {
				p.OnRetry(err, attempts, delay)
			}
			return delay
		}),
	)

	value, err := retrier.Do(func() (T, error) {
		attempts++
		v, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err != nil {
			lastErr = err
		}
		return v, err
	})
	if err == nil {
		return Result[T]{Value: value, Attempts: attempts, TotalTime: time.Since(start)}, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	if vetoed {
		return Result[T]{Attempts: attempts, TotalTime: time.Since(start)}, lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && attempts < p.MaxAttempts {
		return Result[T]{Attempts: attempts, TotalTime: time.Since(start)}, fmt.Errorf("%w: %w", ctxErr, lastErr)
	}
	return Result[T]{Attempts: attempts, TotalTime: time.Since(start)}, &RetryExhaustedError{
		Attempts:  attempts,
		TotalTime: time.Since(start),
		LastErr:   lastErr,
	}
}

// runAttempt races op against the attempt deadline. An op that ignores its
// context keeps running in the background until it returns on its own.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return out.value, &OperationTimeoutError{Timeout: timeout, Err: out.err}
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &OperationTimeoutError{Timeout: timeout, Err: attemptCtx.Err()}
	}
}
