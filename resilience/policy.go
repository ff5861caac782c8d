package resilience

import (
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Policy configures Run.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// AttemptTimeout bounds every attempt; zero means no per-attempt deadline.
	AttemptTimeout time.Duration
	// ShouldRetry is consulted after a failed attempt, before sleeping.
	// attempt is the number of attempts made so far. Nil retries everything.
	ShouldRetry func(err error, attempt int) bool
	// OnRetry observes a scheduled retry. attempt is the attempt that failed.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// ChartAPIPolicy is tuned for the flaky chart upstream.
func ChartAPIPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
		AttemptTimeout: 15 * time.Second,
		ShouldRetry:    ChartAPIRetryable,
	}
}

// CatalogAPIPolicy is tuned for the enrichment catalog.
func CatalogAPIPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
		AttemptTimeout: 10 * time.Second,
		ShouldRetry:    CatalogAPIRetryable,
	}
}

// rateLimitAttempts caps the total attempts spent on 429 responses.
const rateLimitAttempts = 3

// ChartAPIRetryable never retries client errors, gives rate limiting a few
// attempts and retries server, network and timeout failures.
func ChartAPIRetryable(err error, attempt int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return attempt < rateLimitAttempts
		}
		return httpErr.ServerError()
	}
	return isTransient(err)
}

// CatalogAPIRetryable retries server errors, rate limiting and transient
// transport failures.
func CatalogAPIRetryable(err error, _ int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ServerError() || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return isTransient(err)
}

func isTransient(err error) bool {
	if IsTimeout(err) {
		return true
	}
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}

// BaseDelay returns the un-jittered delay before attempt n (n >= 2).
func (p Policy) BaseDelay(n int) time.Duration {
	if n < 2 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(n-2))
	if p.MaxDelay > 0 && (math.IsInf(delay, 1) || math.IsNaN(delay) || delay > float64(p.MaxDelay)) {
		return p.MaxDelay
	}
	if math.IsInf(delay, 1) || math.IsNaN(delay) || delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Delay returns the jittered delay before attempt n.
func (p Policy) Delay(n int) time.Duration {
	return p.jittered(p.BaseDelay(n), rand.Float64())
}

// jittered perturbs d by ±d*JitterFraction scaled by r in [0,1).
func (p Policy) jittered(d time.Duration, r float64) time.Duration {
	if p.JitterFraction <= 0 || d <= 0 {
		return d
	}
	jitter := float64(d) * p.JitterFraction * (r*2 - 1)
	out := float64(d) + jitter
	if out < 0 {
		return 0
	}
	return time.Duration(out)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	} else if p.JitterFraction > 1 {
		p.JitterFraction = 1
	}
	return p
}
