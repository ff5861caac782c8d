package resilience

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateFrom(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// BreakerConfig configures NewBreaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)
}

// ChartAPIBreaker returns the settings used for the chart upstream.
func ChartAPIBreaker() BreakerConfig {
	return BreakerConfig{Name: "billboard", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}
}

// CatalogAPIBreaker returns the settings used for the enrichment catalog.
func CatalogAPIBreaker() BreakerConfig {
	return BreakerConfig{Name: "appleMusic", FailureThreshold: 5, RecoveryTimeout: 60 * time.Second}
}

// Breaker guards one upstream dependency. Construct once per dependency and
// share it between callers.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration
	cb        *gobreaker.CircuitBreaker[any]
	lastTrip  atomic.Int64
	// failures survives state changes, unlike gobreaker's generation counts.
	failures atomic.Int64
}

// NewBreaker builds a breaker that opens after FailureThreshold consecutive
// failures and lets one trial call through after RecoveryTimeout.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	b := &Breaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
	}
	threshold := uint32(cfg.FailureThreshold)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.lastTrip.Store(time.Now().UnixNano())
			}
			slog.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", stateFrom(from).String()),
				slog.String("to", stateFrom(to).String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, stateFrom(from), stateFrom(to))
			}
		},
	})
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving Open to Half-Open once the
// recovery timeout has elapsed.
func (b *Breaker) State() State {
	return stateFrom(b.cb.State())
}

// Do runs fn through the breaker. Rejected calls return *CircuitOpenError
// without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Execute runs fn through b and returns its value.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil {
			b.failures.Add(1)
		} else {
			b.failures.Store(0)
		}
		return v, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &CircuitOpenError{Name: b.name, State: b.State(), Err: err}
		}
		if v, ok := out.(T); ok {
			return v, err
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// BreakerHealth is a point-in-time view of a breaker.
type BreakerHealth struct {
	Name                string
	State               State
	ConsecutiveFailures int
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	LastTrip            time.Time
}

// Health reports the breaker's current state and counters.
func (b *Breaker) Health() BreakerHealth {
	h := BreakerHealth{
		Name:                b.name,
		State:               b.State(),
		ConsecutiveFailures: int(b.failures.Load()),
		FailureThreshold:    b.threshold,
		RecoveryTimeout:     b.recovery,
	}
	if ns := b.lastTrip.Load(); ns != 0 {
		h.LastTrip = time.Unix(0, ns)
	}
	return h
}
