package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-integrations/breaker"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	"github.com/goliatone/go-integrations/webhooks"
)

// PipelineStatsReader is satisfied by *webhooks.Pipeline.
type PipelineStatsReader interface {
	Stats() webhooks.PipelineStats
}

// CircuitSnapshotReader is satisfied by *breaker.Registry.
type CircuitSnapshotReader interface {
	Snapshots() []breaker.Snapshot
}

// SyncLogReader is satisfied by *sqlstore.SyncLogStore.
type SyncLogReader interface {
	List(ctx context.Context, filter sqlstore.SyncLogFilter) (sqlstore.SyncLogPage, error)
}

type QueueStatsQuery struct {
	reader PipelineStatsReader
}

func NewQueueStatsQuery(reader PipelineStatsReader) *QueueStatsQuery {
	return &QueueStatsQuery{reader: reader}
}

func (q *QueueStatsQuery) Query(_ context.Context, _ QueueStatsMessage) (webhooks.PipelineStats, error) {
	if q == nil || q.reader == nil {
		return webhooks.PipelineStats{}, queryDependencyError("query: webhook pipeline is required")
	}
	return q.reader.Stats(), nil
}

type CircuitSnapshotsQuery struct {
	reader CircuitSnapshotReader
}

func NewCircuitSnapshotsQuery(reader CircuitSnapshotReader) *CircuitSnapshotsQuery {
	return &CircuitSnapshotsQuery{reader: reader}
}

func (q *CircuitSnapshotsQuery) Query(_ context.Context, msg CircuitSnapshotsMessage) ([]breaker.Snapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: circuit registry is required")
	}
	snapshots := q.reader.Snapshots()
	service := strings.TrimSpace(strings.ToLower(msg.Service))
	if service == "" {
		return snapshots, nil
	}
	for _, snapshot := range snapshots {
		if snapshot.Service == service {
			return []breaker.Snapshot{snapshot}, nil
		}
	}
	return nil, queryNotFoundError("query: circuit not found", map[string]any{"service": service})
}

type ListSyncLogsQuery struct {
	reader SyncLogReader
}

func NewListSyncLogsQuery(reader SyncLogReader) *ListSyncLogsQuery {
	return &ListSyncLogsQuery{reader: reader}
}

func (q *ListSyncLogsQuery) Query(ctx context.Context, msg ListSyncLogsMessage) (sqlstore.SyncLogPage, error) {
	if q == nil || q.reader == nil {
		return sqlstore.SyncLogPage{}, queryDependencyError("query: sync log reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
