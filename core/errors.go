package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput    = "SERVICE_BAD_INPUT"
	ServiceErrorNotFound    = "SERVICE_NOT_FOUND"
	ServiceErrorInternal    = "SERVICE_INTERNAL_ERROR"
	ServiceErrorUnavailable = "SERVICE_UNAVAILABLE"
	ServiceErrorTimeout     = "REQUEST_TIMEOUT"
	ServiceErrorHTTP        = "HTTP_ERROR"
	ServiceErrorNetwork     = "NETWORK_ERROR"
	ServiceErrorValidation  = "VALIDATION_ERROR"
	ServiceErrorQueueFull   = "QUEUE_FULL"
)

// MapError converts any error into the service error envelope. Rich errors
// keep their category and text code; plain errors are classified by message.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorTimeout, http.StatusRequestTimeout)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "circuit") && strings.Contains(msg, "open"):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorUnavailable, http.StatusServiceUnavailable)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorTimeout, http.StatusRequestTimeout)
	case strings.Contains(msg, "queue") && strings.Contains(msg, "full"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorQueueFull, http.StatusTooManyRequests)
	case strings.Contains(msg, "not registered"), strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound, http.StatusNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput, http.StatusBadRequest)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string, code int) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithCode(code).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ServiceErrorBadInput
	case goerrors.CategoryValidation:
		return ServiceErrorValidation
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryRateLimit:
		return ServiceErrorQueueFull
	case goerrors.CategoryExternal:
		return ServiceErrorUnavailable
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
