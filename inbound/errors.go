package inbound

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// validationError marks a request rejected before it reaches the queue.
func validationError(source error, message string, metadata map[string]any) *goerrors.Error {
	return inboundWrapError(
		source,
		goerrors.CategoryValidation,
		message,
		http.StatusBadRequest,
		core.ServiceErrorValidation,
		metadata,
	)
}

func unknownProviderError(provider string) *goerrors.Error {
	return inboundError(
		"inbound: provider is not registered",
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		core.ServiceErrorNotFound,
		map[string]any{"provider": provider},
	)
}

// toServiceError maps push and decode failures onto the response envelope.
func toServiceError(err error) *goerrors.Error {
	var queueFull *webhooks.QueueFullError
	if goerrors.As(err, &queueFull) {
		return queueFull.ToServiceError()
	}
	return core.MapError(err)
}

type errorPayload struct {
	TextCode string         `json:"text_code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err *goerrors.Error) {
	status := err.Code
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: errorPayload{
		TextCode: err.TextCode,
		Message:  err.Message,
		Metadata: err.Metadata,
	}})
}
