package charts

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aluiziolira/go-chart-client/resilience"
)

// ConfigError indicates a required setting is missing or invalid.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s is not set", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrorKind is the caller-facing category of a failed fetch.
type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindTimeout       ErrorKind = "timeout"
	KindUnavailable   ErrorKind = "unavailable"
	KindFetchFailed   ErrorKind = "fetch_failed"
)

// HTTPStatus suggests the status a request handler should respond with.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotConfigured:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// FetchError is returned by FetchChart when neither the upstream nor the
// cache could produce a snapshot.
type FetchError struct {
	Kind    ErrorKind
	ChartID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch chart %s: %s: %v", e.ChartID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(chartID string, err error) *FetchError {
	return &FetchError{Kind: classifyFetchError(err), ChartID: chartID, Err: err}
}

func classifyFetchError(err error) ErrorKind {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return KindNotConfigured
	}
	if resilience.IsCircuitOpen(err) {
		return KindUnavailable
	}
	if resilience.IsTimeout(err) {
		return KindTimeout
	}
	var networkErr *resilience.NetworkError
	if errors.As(err, &networkErr) {
		return KindUnavailable
	}
	var httpErr *resilience.HTTPError
	if errors.As(err, &httpErr) && (httpErr.ServerError() || httpErr.StatusCode == http.StatusTooManyRequests) {
		return KindUnavailable
	}
	return KindFetchFailed
}
