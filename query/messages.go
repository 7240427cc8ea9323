package query

import (
	"strings"

	sqlstore "github.com/goliatone/go-integrations/store/sql"
)

const (
	TypeQueueStats       = "integrations.query.webhook.queue_stats"
	TypeCircuitSnapshots = "integrations.query.circuit.snapshots"
	TypeListSyncLogs     = "integrations.query.sync_logs.list"
)

type QueueStatsMessage struct{}

func (QueueStatsMessage) Type() string { return TypeQueueStats }

func (QueueStatsMessage) Validate() error { return nil }

// CircuitSnapshotsMessage lists every known circuit, or only Service when
// it is set.
type CircuitSnapshotsMessage struct {
	Service string
}

func (CircuitSnapshotsMessage) Type() string { return TypeCircuitSnapshots }

func (CircuitSnapshotsMessage) Validate() error { return nil }

type ListSyncLogsMessage struct {
	Filter sqlstore.SyncLogFilter
}

func (ListSyncLogsMessage) Type() string { return TypeListSyncLogs }

func (m ListSyncLogsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	switch strings.TrimSpace(m.Filter.Status) {
	case "", "completed", "failed":
	default:
		return queryValidationError("status", "status must be completed or failed")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}
