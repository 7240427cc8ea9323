package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDWebhookReplay      = "integrations.webhook.replay"
	ScriptPathWebhookReplay = "integrations.webhook.replay"
)

// RetryPolicy bounds how replayed deliveries are nacked.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. A
// missing disposition means retry; a retry at or past MaxAttempts becomes
// dead_letter when DeadLetterOnMax is set and failed otherwise.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry || out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	return out
}

// ToExecutionMessage encodes an evicted event as a go-job message. Every
// parameter is a string or bool so the message survives a JSON round trip
// through any queue backend.
func ToExecutionMessage(event webhooks.Event) *job.ExecutionMessage {
	params := map[string]any{
		"id":             event.ID,
		"webhook_id":     event.WebhookID,
		"integration_id": event.IntegrationID,
		"provider":       event.Provider,
		"event_type":     event.EventType,
		"payload":        string(event.Payload),
		"signature":      event.Signature,
		"verified":       event.Verified,
	}
	if !event.ReceivedAt.IsZero() {
		params["received_at"] = event.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	idempotencyKey := ""
	if event.ID != "" {
		idempotencyKey = "webhook:" + event.ID
	}
	return &job.ExecutionMessage{
		JobID:          JobIDWebhookReplay,
		ScriptPath:     ScriptPathWebhookReplay,
		Parameters:     params,
		IdempotencyKey: idempotencyKey,
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

// ReplayEvent decodes a message produced by ToExecutionMessage.
func ReplayEvent(msg *job.ExecutionMessage) (webhooks.Event, error) {
	if msg == nil {
		return webhooks.Event{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDWebhookReplay {
		return webhooks.Event{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	params := msg.Parameters
	event := webhooks.Event{
		ID:            readString(params, "id"),
		WebhookID:     readString(params, "webhook_id"),
		IntegrationID: readString(params, "integration_id"),
		Provider:      readString(params, "provider"),
		EventType:     readString(params, "event_type"),
		Signature:     readString(params, "signature"),
		Verified:      readBool(params, "verified"),
	}
	if payload := readString(params, "payload"); payload != "" {
		if !json.Valid([]byte(payload)) {
			return webhooks.Event{}, fmt.Errorf("gojob: replayed payload for %s is not valid json", event.ID)
		}
		event.Payload = json.RawMessage(payload)
	}
	if raw := readString(params, "received_at"); raw != "" {
		receivedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return webhooks.Event{}, fmt.Errorf("gojob: parse received_at: %w", err)
		}
		event.ReceivedAt = receivedAt
	}
	if event.WebhookID == "" || event.Provider == "" {
		return webhooks.Event{}, fmt.Errorf("gojob: replayed event requires webhook id and provider")
	}
	return event, nil
}

// OverflowSpiller hands events evicted by the drop_oldest policy to a go-job
// queue so they can be replayed once the pipeline catches up.
type OverflowSpiller struct {
	enqueuer queue.Enqueuer
	observer core.Observer
}

type SpillerOption func(*OverflowSpiller)

func WithSpillerLogger(logger core.Logger) SpillerOption {
	return func(s *OverflowSpiller) {
		s.observer.Logger = logger
	}
}

func WithSpillerMetricsRecorder(recorder core.MetricsRecorder) SpillerOption {
	return func(s *OverflowSpiller) {
		if recorder != nil {
			s.observer.Metrics = recorder
		}
	}
}

func NewOverflowSpiller(enqueuer queue.Enqueuer, opts ...SpillerOption) *OverflowSpiller {
	s := &OverflowSpiller{
		enqueuer: enqueuer,
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Spill enqueues every event and stops at the first failure, returning how
// far it got in the error.
func (s *OverflowSpiller) Spill(ctx context.Context, events []webhooks.Event) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	for i, event := range events {
		receipt, err := s.enqueuer.Enqueue(ctx, ToExecutionMessage(event))
		if err != nil {
			s.observer.Count(ctx, "webhooks.overflow.spilled", int64(i), nil)
			return fmt.Errorf("gojob: spill event %s (%d of %d): %w", event.ID, i+1, len(events), err)
		}
		s.observer.Debug(ctx, "webhook event spilled", map[string]any{
			"event_id":    event.ID,
			"dispatch_id": receipt.DispatchID,
		})
	}
	s.observer.Count(ctx, "webhooks.overflow.spilled", int64(len(events)), nil)
	return nil
}

// Pusher is the queue entry point replayed events go back through.
type Pusher interface {
	Push(ctx context.Context, event webhooks.Event) (webhooks.Event, error)
}

// Replayer pushes spilled events back into the pipeline. A full queue nacks
// the delivery for a later retry; an undecodable message is dead-lettered.
type Replayer struct {
	pusher     Pusher
	policy     RetryPolicy
	retryDelay time.Duration
	observer   core.Observer
}

func NewReplayer(pusher Pusher, policy RetryPolicy, retryDelay time.Duration) *Replayer {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Replayer{
		pusher:     pusher,
		policy:     policy,
		retryDelay: retryDelay,
		observer:   core.NewObserver(nil, nil),
	}
}

func (r *Replayer) WithLogger(logger core.Logger) *Replayer {
	r.observer.Logger = logger
	return r
}

func (r *Replayer) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if r == nil || r.pusher == nil {
		return fmt.Errorf("gojob: replay pusher is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	event, err := ReplayEvent(delivery.Message())
	if err != nil {
		r.observer.Error(ctx, "webhook replay message rejected", map[string]any{"error": err.Error()})
		return delivery.Nack(ctx, r.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		}, attempt))
	}
	if _, err := r.pusher.Push(ctx, event); err != nil {
		opts := r.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionRetry,
			Delay:       r.retryDelay,
			Reason:      err.Error(),
		}, attempt)
		r.observer.Warn(ctx, "webhook replay deferred", map[string]any{
			"event_id":    event.ID,
			"attempt":     attempt,
			"disposition": string(opts.Disposition),
			"error":       err.Error(),
		})
		return delivery.Nack(ctx, opts)
	}
	return delivery.Ack(ctx)
}

// WorkerHook logs go-job worker events for replay jobs.
type WorkerHook struct {
	observer core.Observer
}

func NewWorkerHook(logger core.Logger, recorder core.MetricsRecorder) *WorkerHook {
	return &WorkerHook{observer: core.NewObserver(logger, recorder)}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.observer.Debug(ctx, "webhook replay started", workerFields(event))
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.observer.Count(ctx, "webhooks.replay.total", 1, map[string]string{"outcome": "success"})
	h.observer.Observe(ctx, "webhooks.replay.duration_ms", float64(event.Duration.Milliseconds()), nil)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.observer.Count(ctx, "webhooks.replay.total", 1, map[string]string{"outcome": "failure"})
	h.observer.Error(ctx, "webhook replay failed", workerFields(event))
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.observer.Count(ctx, "webhooks.replay.total", 1, map[string]string{"outcome": "retry"})
	h.observer.Warn(ctx, "webhook replay retrying", workerFields(event))
}

func workerFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"attempt":     event.Attempt,
		"delay_ms":    event.Delay.Milliseconds(),
		"duration_ms": event.Duration.Milliseconds(),
	}
	if message != nil {
		fields["job_id"] = message.JobID
		fields["idempotency_key"] = message.IdempotencyKey
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func readString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []byte:
		return strings.TrimSpace(string(typed))
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func readBool(params map[string]any, key string) bool {
	switch typed := params[key].(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		return false
	}
}

var (
	_ webhooks.OverflowSink = (*OverflowSpiller)(nil)
	_ worker.Hook           = (*WorkerHook)(nil)
)
