package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	"github.com/goliatone/go-integrations/webhooks"
)

type stubSyncLogReader struct {
	listFn func(ctx context.Context, filter sqlstore.SyncLogFilter) (sqlstore.SyncLogPage, error)
}

func (s stubSyncLogReader) List(ctx context.Context, filter sqlstore.SyncLogFilter) (sqlstore.SyncLogPage, error) {
	return s.listFn(ctx, filter)
}

func TestQueueStatsQuery_ReportsPipelineState(t *testing.T) {
	cfg := core.DefaultConfig()
	stats := webhooks.NewStatsAggregator(webhooks.NewMemoryStatsSink())
	pipeline, err := webhooks.NewPipeline(
		webhooks.NewQueue(cfg.Queue),
		webhooks.NewProcessor(webhooks.NewHandlerTable(), webhooks.NewMemoryBatchLogSink(), stats),
		stats,
		webhooks.PipelineConfigFrom(cfg),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	for _, id := range []string{"evt_1", "evt_2"} {
		if _, err := pipeline.Push(context.Background(), webhooks.Event{ID: id, WebhookID: "wh", Provider: "slack", Verified: true}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	result, err := NewQueueStatsQuery(pipeline).Query(context.Background(), QueueStatsMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.QueueSize != 2 || result.Processing || result.Running {
		t.Fatalf("unexpected stats: %#v", result)
	}
	if result.BatchSize != cfg.Queue.BatchSize || result.TickInterval != time.Second {
		t.Fatalf("expected configured batch settings, got %#v", result)
	}
}

func TestCircuitSnapshotsQuery_FiltersByService(t *testing.T) {
	registry := breaker.NewRegistry(core.DefaultConfig().Circuit)
	registry.Get("slack").RecordFailure()
	registry.Get("google")

	qry := NewCircuitSnapshotsQuery(registry)
	all, err := qry.Query(context.Background(), CircuitSnapshotsMessage{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 2 || all[0].Service != "google" || all[1].Service != "slack" {
		t.Fatalf("expected sorted snapshots, got %#v", all)
	}

	one, err := qry.Query(context.Background(), CircuitSnapshotsMessage{Service: " Slack "})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if len(one) != 1 || one[0].FailureCount != 1 || one[0].State != breaker.StateClosed {
		t.Fatalf("unexpected slack snapshot: %#v", one)
	}

	_, err = qry.Query(context.Background(), CircuitSnapshotsMessage{Service: "teams"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ServiceErrorNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestListSyncLogsQuery_Delegates(t *testing.T) {
	called := false
	reader := stubSyncLogReader{
		listFn: func(_ context.Context, filter sqlstore.SyncLogFilter) (sqlstore.SyncLogPage, error) {
			called = true
			if filter.Status != "failed" || filter.PerPage != 10 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return sqlstore.SyncLogPage{
				Items:   []webhooks.BatchLogEntry{{ID: "log_1", Status: "failed"}},
				Page:    1,
				PerPage: 10,
				Total:   1,
			}, nil
		},
	}
	page, err := NewListSyncLogsQuery(reader).Query(context.Background(), ListSyncLogsMessage{
		Filter: sqlstore.SyncLogFilter{Status: "failed", Page: 1, PerPage: 10},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !called || page.Total != 1 || page.Items[0].ID != "log_1" {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestListSyncLogsMessage_Validate(t *testing.T) {
	from := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	cases := []struct {
		name   string
		filter sqlstore.SyncLogFilter
	}{
		{name: "negative page", filter: sqlstore.SyncLogFilter{Page: -1}},
		{name: "negative per page", filter: sqlstore.SyncLogFilter{PerPage: -1}},
		{name: "unknown status", filter: sqlstore.SyncLogFilter{Status: "running"}},
		{name: "inverted range", filter: sqlstore.SyncLogFilter{From: &from, To: &to}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := (ListSyncLogsMessage{Filter: tc.filter}).Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("unexpected error envelope: %q %q", rich.Category, rich.TextCode)
			}
		})
	}
	if err := (ListSyncLogsMessage{Filter: sqlstore.SyncLogFilter{Status: "completed"}}).Validate(); err != nil {
		t.Fatalf("expected valid filter: %v", err)
	}
}

func TestQueries_NilDependenciesReturnRichError(t *testing.T) {
	var qry *QueueStatsQuery
	_, err := qry.Query(context.Background(), QueueStatsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if _, err := NewListSyncLogsQuery(nil).Query(context.Background(), ListSyncLogsMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}
