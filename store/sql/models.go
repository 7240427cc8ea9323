package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type syncLogRecord struct {
	bun.BaseModel `bun:"table:integration_sync_logs,alias:isl"`

	ID               string         `bun:"id,pk"`
	IntegrationID    string         `bun:"integration_id,notnull"`
	SyncType         string         `bun:"sync_type,notnull"`
	Direction        string         `bun:"direction,notnull"`
	Status           string         `bun:"status,notnull"`
	ResourceType     string         `bun:"resource_type,notnull"`
	ResourceCount    int            `bun:"resource_count,notnull"`
	StartedAt        time.Time      `bun:"started_at,notnull"`
	CompletedAt      time.Time      `bun:"completed_at,notnull"`
	DurationMs       int64          `bun:"duration_ms,notnull"`
	RecordsProcessed int            `bun:"records_processed,notnull"`
	RecordsCreated   int            `bun:"records_created,notnull"`
	RecordsFailed    int            `bun:"records_failed,notnull"`
	ErrorMessage     string         `bun:"error_message"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookStatsRecord struct {
	bun.BaseModel `bun:"table:webhook_stats,alias:ws"`

	WebhookID      string     `bun:"webhook_id,pk"`
	ReceivedCount  int64      `bun:"received_count,notnull"`
	FailedCount    int64      `bun:"failed_count,notnull"`
	LastReceivedAt *time.Time `bun:"last_received_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
