package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type pipelineFixture struct {
	pipeline  *webhooks.Pipeline
	logs      *webhooks.MemoryBatchLogSink
	statsSink *webhooks.MemoryStatsSink
}

func newPipelineFixture(t *testing.T, handler webhooks.Handler) pipelineFixture {
	t.Helper()
	handlers := webhooks.NewHandlerTable()
	if err := handlers.Register("slack", handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	logs := webhooks.NewMemoryBatchLogSink()
	statsSink := webhooks.NewMemoryStatsSink()
	stats := webhooks.NewStatsAggregator(statsSink)
	pipeline, err := webhooks.NewPipeline(
		webhooks.NewQueue(core.DefaultConfig().Queue),
		webhooks.NewProcessor(handlers, logs, stats),
		stats,
		webhooks.PipelineConfig{BatchSize: 10, TickInterval: time.Second, FlushInterval: time.Second},
		webhooks.WithBatchTicks(core.NewManualTicker()),
		webhooks.WithFlushTicks(core.NewManualTicker()),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return pipelineFixture{pipeline: pipeline, logs: logs, statsSink: statsSink}
}

func verifiedEvent(id string) webhooks.Event {
	return webhooks.Event{
		ID:        id,
		WebhookID: "wh_1",
		Provider:  "slack",
		EventType: "message",
		Payload:   []byte(`{"type":"message"}`),
		Verified:  true,
	}
}

func TestEnqueueDrainFlush_RunThroughPipeline(t *testing.T) {
	handled := 0
	fixture := newPipelineFixture(t, webhooks.HandlerFunc(func(context.Context, webhooks.Event) error {
		handled++
		return nil
	}))

	enqueueCollector := gocmd.NewResult[webhooks.Event]()
	ctx := gocmd.ContextWithResult(context.Background(), enqueueCollector)
	if err := NewEnqueueWebhookCommand(fixture.pipeline).Execute(ctx, EnqueueWebhookMessage{Event: verifiedEvent("evt_1")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	queued, ok := enqueueCollector.Load()
	if !ok || queued.ID != "evt_1" || queued.ReceivedAt.IsZero() {
		t.Fatalf("expected queued event result, got %#v", queued)
	}

	drainCollector := gocmd.NewResult[DrainBatchResult]()
	ctx = gocmd.ContextWithResult(context.Background(), drainCollector)
	if err := NewDrainBatchCommand(fixture.pipeline).Execute(ctx, DrainBatchMessage{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	drained, ok := drainCollector.Load()
	if !ok || !drained.Ran || drained.Result.Count != 1 || drained.Result.Succeeded != 1 {
		t.Fatalf("unexpected drain result: %#v", drained)
	}
	if handled != 1 {
		t.Fatalf("expected handler to run once, got %d", handled)
	}

	flushCollector := gocmd.NewResult[FlushStatsResult]()
	ctx = gocmd.ContextWithResult(context.Background(), flushCollector)
	if err := NewFlushStatsCommand(fixture.pipeline).Execute(ctx, FlushStatsMessage{}); err != nil {
		t.Fatalf("flush: %v", err)
	}
	flushed, _ := flushCollector.Load()
	if flushed.Flushed != 1 {
		t.Fatalf("expected one webhook flushed, got %d", flushed.Flushed)
	}
	stats, ok := fixture.statsSink.Get("wh_1")
	if !ok || stats.Received != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected persisted stats: %#v", stats)
	}
}

func TestDrainBatchCommand_EmptyQueueReportsNotRan(t *testing.T) {
	fixture := newPipelineFixture(t, webhooks.HandlerFunc(func(context.Context, webhooks.Event) error { return nil }))
	collector := gocmd.NewResult[DrainBatchResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewDrainBatchCommand(fixture.pipeline).Execute(ctx, DrainBatchMessage{}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Ran {
		t.Fatalf("expected empty drain, got %#v", result)
	}
	if len(fixture.logs.Batches()) != 0 {
		t.Fatalf("expected no batch log writes")
	}
}

func TestFlushStatsCommand_ReturnsSinkError(t *testing.T) {
	fixture := newPipelineFixture(t, webhooks.HandlerFunc(func(context.Context, webhooks.Event) error { return nil }))
	if _, err := fixture.pipeline.Push(context.Background(), verifiedEvent("evt_1")); err != nil {
		t.Fatalf("push: %v", err)
	}
	fixture.pipeline.RunBatch(context.Background())
	fixture.statsSink.SetErr(errors.New("db down"))

	if err := NewFlushStatsCommand(fixture.pipeline).Execute(context.Background(), FlushStatsMessage{}); err == nil {
		t.Fatalf("expected flush error")
	}
	if fixture.pipeline.Aggregator().Len() != 1 {
		t.Fatalf("expected failed delta to stay buffered")
	}
}

func TestResetCircuitCommand(t *testing.T) {
	registry := breaker.NewRegistry(core.DefaultConfig().Circuit)
	circuit := registry.Get("slack")
	for i := 0; i < circuit.Config().FailureThreshold; i++ {
		circuit.RecordFailure()
	}
	if circuit.State() != breaker.StateOpen {
		t.Fatalf("expected open circuit, got %s", circuit.State())
	}

	cmd := NewResetCircuitCommand(registry)
	if err := cmd.Execute(context.Background(), ResetCircuitMessage{Service: "slack"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if circuit.State() != breaker.StateClosed {
		t.Fatalf("expected closed circuit, got %s", circuit.State())
	}
	if err := cmd.Execute(context.Background(), ResetCircuitMessage{Service: "unknown"}); err == nil {
		t.Fatalf("expected unknown circuit error")
	}

	circuit.RecordFailure()
	if err := cmd.Execute(context.Background(), ResetCircuitMessage{All: true}); err != nil {
		t.Fatalf("reset all: %v", err)
	}
	if snapshot := circuit.Snapshot(); snapshot.FailureCount != 0 {
		t.Fatalf("expected failure count cleared, got %d", snapshot.FailureCount)
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		name     string
		msg      interface{ Validate() error }
		category goerrors.Category
	}{
		{name: "missing webhook id", msg: EnqueueWebhookMessage{Event: webhooks.Event{Provider: "slack", Verified: true}}, category: goerrors.CategoryValidation},
		{name: "missing provider", msg: EnqueueWebhookMessage{Event: webhooks.Event{WebhookID: "wh", Verified: true}}, category: goerrors.CategoryValidation},
		{name: "unverified", msg: EnqueueWebhookMessage{Event: webhooks.Event{WebhookID: "wh", Provider: "slack"}}, category: goerrors.CategoryBadInput},
		{name: "reset without service", msg: ResetCircuitMessage{}, category: goerrors.CategoryValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != tc.category {
				t.Fatalf("expected %q category, got %q", tc.category, rich.Category)
			}
			if rich.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
			}
		})
	}

	if err := (ResetCircuitMessage{All: true}).Validate(); err != nil {
		t.Fatalf("reset all should validate: %v", err)
	}
}

func TestCommands_NilDependenciesReturnRichError(t *testing.T) {
	var enqueue *EnqueueWebhookCommand
	err := enqueue.Execute(context.Background(), EnqueueWebhookMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if err := NewResetCircuitCommand(nil).Execute(context.Background(), ResetCircuitMessage{All: true}); err == nil {
		t.Fatalf("expected dependency error")
	}
}
