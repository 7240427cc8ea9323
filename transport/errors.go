package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

type ErrorKind string

const (
	KindTimeout            ErrorKind = "timeout"
	KindHTTP               ErrorKind = "http"
	KindNetwork            ErrorKind = "network"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	// KindInvalidRequest is a request the adapter refused to send. It is
	// never retried and does not count against the circuit.
	KindInvalidRequest ErrorKind = "invalid_request"
)

// RequestError is the typed failure of a logical request, surfaced after
// retries are exhausted or a non-retryable outcome is hit.
type RequestError struct {
	Kind       ErrorKind
	StatusCode int
	Service    string
	Method     string
	URL        string
	Body       []byte
	Attempts   int
	Cause      error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transport: %s %s %s", e.Service, e.Method, e.URL)
	switch e.Kind {
	case KindTimeout:
		b.WriteString(" timed out")
	case KindHTTP:
		fmt.Fprintf(&b, " returned status %d", e.StatusCode)
	case KindServiceUnavailable:
		b.WriteString(" short-circuited: service unavailable")
	case KindInvalidRequest:
		b.WriteString(" rejected before sending")
	default:
		b.WriteString(" network error")
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Cause != nil && e.Kind != KindHTTP {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed: network errors with
// no status, timeouts, and statuses 408, 429, 500, 502, 503, 504.
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTimeout:
		return true
	case KindNetwork:
		return !errors.Is(e.Cause, context.Canceled) && !errors.Is(e.Cause, context.DeadlineExceeded)
	case KindHTTP:
		return IsRetryableStatus(e.StatusCode)
	default:
		return false
	}
}

// CircuitNeutral keeps requests that never reached the service out of the
// breaker's failure count.
func (e *RequestError) CircuitNeutral() bool {
	return e != nil && e.Kind == KindInvalidRequest
}

func (e *RequestError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"service":  e.Service,
		"method":   e.Method,
		"url":      e.URL,
		"kind":     string(e.Kind),
		"status":   e.StatusCode,
		"attempts": e.Attempts,
	}
	if len(e.Body) > 0 {
		metadata["body"] = string(e.Body)
	}

	var err *goerrors.Error
	switch e.Kind {
	case KindTimeout:
		err = goerrors.New(e.Error(), goerrors.CategoryExternal).
			WithCode(http.StatusRequestTimeout).
			WithTextCode(core.ServiceErrorTimeout)
	case KindHTTP:
		err = goerrors.New(e.Error(), goerrors.CategoryExternal).
			WithCode(e.StatusCode).
			WithTextCode(core.ServiceErrorHTTP)
	case KindServiceUnavailable:
		err = goerrors.New(e.Error(), goerrors.CategoryExternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(core.ServiceErrorUnavailable)
	case KindInvalidRequest:
		err = goerrors.New(e.Error(), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	default:
		err = goerrors.New(e.Error(), goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ServiceErrorNetwork)
	}
	return err.WithMetadata(metadata)
}

func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	return false
}

// AsRequestError extracts the typed request error from err.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryExternal:
		return core.ServiceErrorNetwork
	default:
		return core.ServiceErrorInternal
	}
}
