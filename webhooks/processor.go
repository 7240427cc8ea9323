package webhooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-integrations/webhooks"

type BatchResult struct {
	Count     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Results   []ProcessingResult
	// LogErr is the batch log write failure, already logged.
	LogErr error
}

// Processor runs batches of events through the handler table. Every event in
// a batch runs concurrently and always yields a ProcessingResult.
type Processor struct {
	handlers *HandlerTable
	logs     BatchLogSink
	stats    *StatsAggregator
	now      func() time.Time
	tracer   trace.Tracer
	observer core.Observer
}

type ProcessorOption func(*Processor)

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithProcessorTracer(tracer trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

func WithProcessorLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.observer.Logger = logger
	}
}

func WithProcessorMetricsRecorder(recorder core.MetricsRecorder) ProcessorOption {
	return func(p *Processor) {
		if recorder != nil {
			p.observer.Metrics = recorder
		}
	}
}

func NewProcessor(handlers *HandlerTable, logs BatchLogSink, stats *StatsAggregator, opts ...ProcessorOption) *Processor {
	if handlers == nil {
		handlers = NewHandlerTable()
	}
	p := &Processor{
		handlers: handlers,
		logs:     logs,
		stats:    stats,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Processor) Handlers() *HandlerTable {
	return p.handlers
}

// ProcessBatch fans out every event, waits for all of them, then writes one
// log batch and records stats. It never returns early on event failures.
func (p *Processor) ProcessBatch(ctx context.Context, events []Event) BatchResult {
	if len(events) == 0 {
		return BatchResult{}
	}
	ctx, span := p.tracer.Start(ctx, "webhooks.batch",
		trace.WithAttributes(attribute.Int("webhooks.batch.size", len(events))),
	)
	defer span.End()

	startedAt := p.now()
	p.observer.Info(ctx, "processing webhook batch", map[string]any{"count": len(events)})

	results := make([]ProcessingResult, len(events))
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.ProcessEvent(ctx, events[i])
		}(i)
	}
	wg.Wait()

	completedAt := p.now().UTC()
	entries := make([]BatchLogEntry, len(events))
	batch := BatchResult{Count: len(events), Results: results}
	for i, event := range events {
		entries[i] = NewBatchLogEntry(event, results[i], completedAt)
		if results[i].Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		if p.stats != nil {
			p.stats.Record(event.WebhookID, !results[i].Success, event.ReceivedAt)
		}
	}

	if p.logs != nil {
		if err := p.logs.InsertBatch(ctx, entries); err != nil {
			batch.LogErr = err
			span.RecordError(err)
			p.observer.Error(ctx, "failed to batch log webhook events", map[string]any{
				"count": len(entries),
				"error": err.Error(),
			})
		} else {
			p.observer.Debug(ctx, "webhook events logged", map[string]any{"count": len(entries)})
		}
	}

	batch.Duration = p.now().Sub(startedAt)
	span.SetAttributes(
		attribute.Int("webhooks.batch.succeeded", batch.Succeeded),
		attribute.Int("webhooks.batch.failed", batch.Failed),
	)
	if batch.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d events failed", batch.Failed))
	}

	fields := map[string]any{
		"count":       batch.Count,
		"successful":  batch.Succeeded,
		"failed":      batch.Failed,
		"duration_ms": batch.Duration.Milliseconds(),
	}
	if seconds := batch.Duration.Seconds(); seconds > 0 {
		fields["throughput"] = float64(batch.Count) / seconds
	}
	p.observer.Info(ctx, "webhook batch processed", fields)
	p.observer.Count(ctx, "webhooks.batch.total", 1, nil)
	p.observer.Observe(ctx, "webhooks.batch.size", float64(batch.Count), nil)
	return batch
}

// ProcessEvent dispatches event to its provider handler. Handler errors and
// panics become a failed result; an unknown provider is logged and counted as
// a success.
func (p *Processor) ProcessEvent(ctx context.Context, event Event) (result ProcessingResult) {
	startedAt := p.now()
	result = ProcessingResult{EventID: event.ID}
	fields := map[string]any{
		"event_id":   event.ID,
		"webhook_id": event.WebhookID,
		"provider":   event.Provider,
		"event_type": event.EventType,
	}

	handler, ok := p.handlers.Lookup(event.Provider)
	if !ok {
		p.observer.Warn(ctx, "unknown provider for webhook event", fields)
		result.Success = true
		result.Duration = p.now().Sub(startedAt)
		return result
	}

	err := invokeHandler(ctx, handler, event)
	result.Duration = p.now().Sub(startedAt)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	p.observer.ObserveOperation(ctx, startedAt, "webhooks.event", err, fields)
	return result
}

func invokeHandler(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("webhooks: handler panic: %v", recovered)
		}
	}()
	return handler.Handle(ctx, event)
}
