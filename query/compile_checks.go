package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/breaker"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	"github.com/goliatone/go-integrations/webhooks"
)

var (
	_ gocmd.Querier[QueueStatsMessage, webhooks.PipelineStats]   = (*QueueStatsQuery)(nil)
	_ gocmd.Querier[CircuitSnapshotsMessage, []breaker.Snapshot] = (*CircuitSnapshotsQuery)(nil)
	_ gocmd.Querier[ListSyncLogsMessage, sqlstore.SyncLogPage]   = (*ListSyncLogsQuery)(nil)
)
