package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPError is a non-2xx response from an upstream dependency.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("upstream http %d", e.StatusCode)
}

// ClientError reports a 4xx status.
func (e *HTTPError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ServerError reports a 5xx status.
func (e *HTTPError) ServerError() bool {
	return e.StatusCode >= 500
}

// OperationTimeoutError indicates an attempt exceeded its deadline.
type OperationTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *OperationTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Errorf("timeout after %s: %w", e.Timeout, e.Err).Error()
	}
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

func (e *OperationTimeoutError) Unwrap() error {
	return e.Err
}

// NetworkError indicates a connection-level failure (refused, reset, DNS).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned once the retry policy has given up.
type RetryExhaustedError struct {
	Attempts  int
	TotalTime time.Duration
	LastErr   error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts in %s: %v", e.Attempts, e.TotalTime.Round(time.Millisecond), e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// CircuitOpenError is returned when a breaker rejects a call without running it.
type CircuitOpenError struct {
	Name  string
	State State
	Err   error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %s is %s", e.Name, e.State)
}

func (e *CircuitOpenError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is (or wraps) an attempt timeout.
func IsTimeout(err error) bool {
	var timeout *OperationTimeoutError
	return errors.As(err, &timeout)
}

// IsCircuitOpen reports whether err came from a rejecting breaker.
func IsCircuitOpen(err error) bool {
	var open *CircuitOpenError
	return errors.As(err, &open)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// ClassifyTransport maps errors returned by an http.Client into the
// taxonomy above. Already classified errors pass through.
func ClassifyTransport(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}

	var (
		httpErr    *HTTPError
		timeoutErr *OperationTimeoutError
		networkErr *NetworkError
	)
	if errors.As(err, &httpErr) || errors.As(err, &timeoutErr) || errors.As(err, &networkErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &OperationTimeoutError{Timeout: timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &OperationTimeoutError{Timeout: timeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &NetworkError{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &NetworkError{Err: err}
	}
	if errors.Is(err, http.ErrHandlerTimeout) {
		return &OperationTimeoutError{Timeout: timeout, Err: err}
	}
	return err
}

// ErrorTypeLabel returns a short metric label for err.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if IsCircuitOpen(err) {
		return "circuit_open"
	}
	if IsTimeout(err) {
		return "timeout"
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return "network"
	}
	switch code := StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code == http.StatusNotFound:
		return "not_found"
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return "forbidden"
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	}
	return "other"
}
