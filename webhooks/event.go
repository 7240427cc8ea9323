package webhooks

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SyncTypeWebhook = "webhook"
	DirectionPull   = "pull"

	LogStatusCompleted = "completed"
	LogStatusFailed    = "failed"
)

// Event is a verified inbound webhook event. Events are never mutated once
// queued.
type Event struct {
	ID            string          `json:"id"`
	WebhookID     string          `json:"webhook_id"`
	IntegrationID string          `json:"integration_id"`
	Provider      string          `json:"provider"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	Signature     string          `json:"signature,omitempty"`
	Verified      bool            `json:"verified"`
}

// normalized fills the id and receive time when the caller left them empty.
func (e Event) normalized(now func() time.Time) Event {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Provider = strings.TrimSpace(strings.ToLower(e.Provider))
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now().UTC()
	}
	return e
}

type ProcessingResult struct {
	EventID  string
	Success  bool
	Duration time.Duration
	Error    string
}

// BatchLogEntry is the persisted form of one processed event.
type BatchLogEntry struct {
	ID               string
	IntegrationID    string
	SyncType         string
	Direction        string
	Status           string
	ResourceType     string
	ResourceCount    int
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationMs       int64
	RecordsProcessed int
	RecordsCreated   int
	RecordsFailed    int
	ErrorMessage     string
	Metadata         map[string]any
}

func NewBatchLogEntry(event Event, result ProcessingResult, completedAt time.Time) BatchLogEntry {
	entry := BatchLogEntry{
		ID:               uuid.NewString(),
		IntegrationID:    event.IntegrationID,
		SyncType:         SyncTypeWebhook,
		Direction:        DirectionPull,
		Status:           LogStatusCompleted,
		ResourceType:     event.EventType,
		ResourceCount:    1,
		StartedAt:        event.ReceivedAt,
		CompletedAt:      completedAt,
		DurationMs:       result.Duration.Milliseconds(),
		RecordsProcessed: 1,
		RecordsCreated:   1,
		Metadata: map[string]any{
			"event_id":     event.ID,
			"webhook_id":   event.WebhookID,
			"provider":     event.Provider,
			"payload_size": len(event.Payload),
		},
	}
	if !result.Success {
		entry.Status = LogStatusFailed
		entry.RecordsCreated = 0
		entry.RecordsFailed = 1
		entry.ErrorMessage = result.Error
	}
	return entry
}

// StatsIncrement is one atomic add against the persisted counters of a
// webhook.
type StatsIncrement struct {
	WebhookID      string
	Received       int64
	Failed         int64
	LastReceivedAt time.Time
}

// BatchLogSink receives exactly one call per processed batch.
type BatchLogSink interface {
	InsertBatch(ctx context.Context, entries []BatchLogEntry) error
}

// StatsSink applies increments; implementations must add, never overwrite.
type StatsSink interface {
	Increment(ctx context.Context, delta StatsIncrement) error
}

// OverflowSink takes events evicted from a full queue.
type OverflowSink interface {
	Spill(ctx context.Context, events []Event) error
}

type BatchLogSinkFunc func(ctx context.Context, entries []BatchLogEntry) error

func (f BatchLogSinkFunc) InsertBatch(ctx context.Context, entries []BatchLogEntry) error {
	return f(ctx, entries)
}

type StatsSinkFunc func(ctx context.Context, delta StatsIncrement) error

func (f StatsSinkFunc) Increment(ctx context.Context, delta StatsIncrement) error {
	return f(ctx, delta)
}
