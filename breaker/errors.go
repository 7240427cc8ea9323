package breaker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

var ErrCircuitOpen = errors.New("breaker: circuit open")

// OpenError is returned without attempting the call while a circuit is open,
// or half-open with its single probe already in flight. RetryAfter is the
// remaining open timeout, or a short fixed hint in the half-open case.
type OpenError struct {
	Service    string
	State      State
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("breaker: circuit for %q is half-open with a probe in flight, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("breaker: circuit for %q is open, retry after %s", e.Service, e.RetryAfter)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

func (e *OpenError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"service": e.Service,
		"state":   string(e.State),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ServiceErrorUnavailable).
		WithMetadata(metadata)
}

func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func circuitNotFoundError(name string) error {
	return goerrors.New(fmt.Sprintf("breaker: circuit %q not registered", name), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ServiceErrorNotFound).
		WithMetadata(map[string]any{"service": name})
}
