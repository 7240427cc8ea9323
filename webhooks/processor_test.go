package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	events := testEvents(10, "slack", "wh-a", "wh-b")
	failing := map[string]bool{"evt-001": true, "evt-004": true, "evt-007": true}

	handlers := NewHandlerTable()
	if err := handlers.Register("slack", HandlerFunc(func(_ context.Context, event Event) error {
		if event.ID == "evt-004" {
			panic("malformed payload")
		}
		if failing[event.ID] {
			return errors.New("downstream rejected event")
		}
		return nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}
	logs := NewMemoryBatchLogSink()
	stats := NewStatsAggregator(NewMemoryStatsSink())
	processor := NewProcessor(handlers, logs, stats)

	result := processor.ProcessBatch(context.Background(), events)
	if result.Count != 10 || result.Succeeded != 7 || result.Failed != 3 {
		t.Fatalf("unexpected batch result: %+v", result)
	}

	batches := logs.Batches()
	if len(batches) != 1 {
		t.Fatalf("expected exactly one log write, got %d", len(batches))
	}
	if len(batches[0]) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(batches[0]))
	}
	completed, failed := 0, 0
	for i, entry := range batches[0] {
		switch entry.Status {
		case LogStatusCompleted:
			completed++
		case LogStatusFailed:
			failed++
			if entry.ErrorMessage == "" || entry.RecordsFailed != 1 || entry.RecordsCreated != 0 {
				t.Fatalf("unexpected failed entry: %+v", entry)
			}
		}
		if entry.Metadata["event_id"] != events[i].ID {
			t.Fatalf("expected entries in event order, got %v at %d", entry.Metadata["event_id"], i)
		}
	}
	if completed != 7 || failed != 3 {
		t.Fatalf("expected 7 completed and 3 failed rows, got %d/%d", completed, failed)
	}
	if !strings.Contains(batches[0][4].ErrorMessage, "panic") {
		t.Fatalf("expected panic to be captured, got %q", batches[0][4].ErrorMessage)
	}

	pending := stats.Pending()
	// wh-a holds even indexes (evt-004 failed), wh-b odd indexes (evt-001, evt-007 failed).
	if pending["wh-a"].Received != 5 || pending["wh-a"].Failed != 1 {
		t.Fatalf("unexpected wh-a stats: %+v", pending["wh-a"])
	}
	if pending["wh-b"].Received != 5 || pending["wh-b"].Failed != 2 {
		t.Fatalf("unexpected wh-b stats: %+v", pending["wh-b"])
	}
}

func TestProcessBatch_RunsEventsConcurrently(t *testing.T) {
	const size = 20
	arrived := make(chan struct{}, size)
	release := make(chan struct{})
	handlers := NewHandlerTable()
	_ = handlers.Register("google", HandlerFunc(func(ctx context.Context, _ Event) error {
		arrived <- struct{}{}
		<-release
		return nil
	}))
	processor := NewProcessor(handlers, NewMemoryBatchLogSink(), nil)

	done := make(chan BatchResult, 1)
	go func() {
		done <- processor.ProcessBatch(context.Background(), testEvents(size, "google"))
	}()
	for i := 0; i < size; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected all %d handlers to run concurrently, only %d started", size, i)
		}
	}
	close(release)
	if result := <-done; result.Succeeded != size {
		t.Fatalf("expected %d successes, got %+v", size, result)
	}
}

func TestProcessEvent_UnknownProviderCountsAsSuccess(t *testing.T) {
	processor := NewProcessor(NewHandlerTable(), nil, nil)
	result := processor.ProcessEvent(context.Background(), Event{ID: "evt-x", Provider: "pagerduty"})
	if !result.Success || result.EventID != "evt-x" {
		t.Fatalf("expected unknown provider to succeed, got %+v", result)
	}
}

func TestProcessBatch_LogWriteFailureIsSwallowed(t *testing.T) {
	handlers := NewHandlerTable()
	_ = handlers.Register("slack", HandlerFunc(func(context.Context, Event) error { return nil }))
	logs := NewMemoryBatchLogSink()
	logs.Err = errors.New("database unavailable")
	stats := NewStatsAggregator(NewMemoryStatsSink())
	processor := NewProcessor(handlers, logs, stats)

	result := processor.ProcessBatch(context.Background(), testEvents(3, "slack"))
	if result.LogErr == nil {
		t.Fatalf("expected log error to be reported on the result")
	}
	if result.Succeeded != 3 {
		t.Fatalf("expected events to succeed despite log failure, got %+v", result)
	}
	if stats.Pending()["wh-1"].Received != 3 {
		t.Fatalf("expected stats to be recorded despite log failure")
	}
}

func TestProcessBatch_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	handlers := NewHandlerTable()
	_ = handlers.Register("slack", HandlerFunc(func(context.Context, Event) error { return errors.New("boom") }))
	processor := NewProcessor(handlers, nil, nil, WithProcessorTracer(provider.Tracer("test")))
	processor.ProcessBatch(context.Background(), testEvents(2, "slack"))

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "webhooks.batch" {
		t.Fatalf("expected one webhooks.batch span, got %d", len(spans))
	}
}

func TestNewBatchLogEntry_Mapping(t *testing.T) {
	event := testEvents(1, "slack")[0]
	completedAt := event.ReceivedAt.Add(time.Second)

	ok := NewBatchLogEntry(event, ProcessingResult{EventID: event.ID, Success: true, Duration: 42 * time.Millisecond}, completedAt)
	if ok.SyncType != SyncTypeWebhook || ok.Direction != DirectionPull || ok.Status != LogStatusCompleted {
		t.Fatalf("unexpected classification: %+v", ok)
	}
	if ok.ResourceType != "message" || ok.ResourceCount != 1 || ok.RecordsProcessed != 1 || ok.RecordsCreated != 1 {
		t.Fatalf("unexpected counts: %+v", ok)
	}
	if ok.DurationMs != 42 || !ok.StartedAt.Equal(event.ReceivedAt) || !ok.CompletedAt.Equal(completedAt) {
		t.Fatalf("unexpected timing: %+v", ok)
	}
	if ok.Metadata["payload_size"] != len(event.Payload) || ok.Metadata["webhook_id"] != "wh-1" {
		t.Fatalf("unexpected metadata: %+v", ok.Metadata)
	}

	failed := NewBatchLogEntry(event, ProcessingResult{EventID: event.ID, Error: "boom"}, completedAt)
	if failed.Status != LogStatusFailed || failed.RecordsFailed != 1 || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}
}

func TestHandlerTable_RegisterAndLookup(t *testing.T) {
	table := NewHandlerTable()
	noop := HandlerFunc(func(context.Context, Event) error { return nil })
	if err := table.Register("Slack", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := table.Register("slack", noop); err == nil {
		t.Fatalf("expected duplicate provider to be rejected")
	}
	if err := table.Register("", noop); err == nil {
		t.Fatalf("expected empty provider to be rejected")
	}
	_ = table.Register("asana", noop)
	if _, ok := table.Lookup(" SLACK "); !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
	providers := table.Providers()
	if len(providers) != 2 || providers[0] != "asana" || providers[1] != "slack" {
		t.Fatalf("unexpected providers %v", providers)
	}
}
