package webhooks

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

var ErrQueueFull = errors.New("webhooks: queue is full")

// QueueFullError is returned by Push under the reject_new overflow policy.
type QueueFullError struct {
	MaxSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("webhooks: queue is full (max size %d)", e.MaxSize)
}

func (e *QueueFullError) Is(target error) bool {
	return target == ErrQueueFull
}

func (e *QueueFullError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorQueueFull).
		WithMetadata(map[string]any{"max_size": e.MaxSize})
}

func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}

func handlerExistsError(provider string) error {
	return goerrors.New(fmt.Sprintf("webhooks: handler for provider %q already registered", provider), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(core.ServiceErrorBadInput).
		WithMetadata(map[string]any{"provider": provider})
}

func handlerRequiredError(provider string) error {
	return goerrors.New("webhooks: provider and handler are required", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput).
		WithMetadata(map[string]any{"provider": provider})
}
