package command

import (
	"strings"

	"github.com/goliatone/go-integrations/webhooks"
)

const (
	TypeEnqueueWebhook = "integrations.command.webhook.enqueue"
	TypeDrainBatch     = "integrations.command.webhook.drain_batch"
	TypeFlushStats     = "integrations.command.webhook.flush_stats"
	TypeResetCircuit   = "integrations.command.circuit.reset"
)

// EnqueueWebhookMessage pushes an already verified event onto the queue.
type EnqueueWebhookMessage struct {
	Event webhooks.Event
}

func (EnqueueWebhookMessage) Type() string { return TypeEnqueueWebhook }

func (m EnqueueWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Event.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	if strings.TrimSpace(m.Event.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if !m.Event.Verified {
		return commandInvalidInputError("command: only verified events can be enqueued")
	}
	return nil
}

// DrainBatchMessage runs one batch outside the tick loop.
type DrainBatchMessage struct{}

func (DrainBatchMessage) Type() string { return TypeDrainBatch }

func (DrainBatchMessage) Validate() error { return nil }

type FlushStatsMessage struct{}

func (FlushStatsMessage) Type() string { return TypeFlushStats }

func (FlushStatsMessage) Validate() error { return nil }

// ResetCircuitMessage forces one circuit, or every circuit when All is set,
// back to closed.
type ResetCircuitMessage struct {
	Service string
	All     bool
}

func (ResetCircuitMessage) Type() string { return TypeResetCircuit }

func (m ResetCircuitMessage) Validate() error {
	if m.All {
		return nil
	}
	if strings.TrimSpace(m.Service) == "" {
		return commandValidationError("service", "service is required unless all is set")
	}
	return nil
}
