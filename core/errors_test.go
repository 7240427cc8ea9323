package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_ClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		code     int
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ServiceErrorTimeout, http.StatusRequestTimeout},
		{"circuit", errors.New("breaker: circuit for slack is open"), ServiceErrorUnavailable, http.StatusServiceUnavailable},
		{"queue", errors.New("webhooks: queue is full"), ServiceErrorQueueFull, http.StatusTooManyRequests},
		{"not found", errors.New("webhooks: handler not registered"), ServiceErrorNotFound, http.StatusNotFound},
		{"bad input", errors.New("event id is required"), ServiceErrorBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
		})
	}
}

func TestMapError_PreservesRichErrors(t *testing.T) {
	rich := goerrors.New("upstream said no", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ServiceErrorHTTP)
	mapped := MapError(fmt.Errorf("wrapped: %w", rich))
	if mapped.TextCode != ServiceErrorHTTP {
		t.Fatalf("expected preserved text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected preserved code, got %d", mapped.Code)
	}
}

func TestMapError_FillsEnvelopeDefaults(t *testing.T) {
	mapped := MapError(goerrors.New("bad payload", goerrors.CategoryValidation))
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation, got %d", mapped.Code)
	}
	if mapped.TextCode != ServiceErrorValidation {
		t.Fatalf("expected validation text code, got %q", mapped.TextCode)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
