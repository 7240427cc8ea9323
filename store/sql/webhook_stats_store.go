package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/webhooks"
	"github.com/uptrace/bun"
)

var ErrWebhookStatsNotFound = errors.New("sqlstore: webhook stats not found")

// WebhookStats is the persisted counter row of one webhook.
type WebhookStats struct {
	WebhookID      string
	ReceivedCount  int64
	FailedCount    int64
	LastReceivedAt *time.Time
	UpdatedAt      time.Time
}

// incrementWebhookStatsSQL adds to the stored counters in one statement so
// concurrent flushes from several processes never lose an update.
// last_received_at only moves forward.
const incrementWebhookStatsSQL = `INSERT INTO webhook_stats
	(webhook_id, received_count, failed_count, last_received_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (webhook_id) DO UPDATE SET
	received_count = webhook_stats.received_count + excluded.received_count,
	failed_count = webhook_stats.failed_count + excluded.failed_count,
	last_received_at = CASE
		WHEN webhook_stats.last_received_at IS NULL
			OR excluded.last_received_at > webhook_stats.last_received_at
		THEN excluded.last_received_at
		ELSE webhook_stats.last_received_at
	END,
	updated_at = excluded.updated_at`

type WebhookStatsStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewWebhookStatsStore(db *bun.DB) (*WebhookStatsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WebhookStatsStore{db: db, now: time.Now}, nil
}

func (s *WebhookStatsStore) Increment(ctx context.Context, delta webhooks.StatsIncrement) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook stats store is not configured")
	}
	webhookID := strings.TrimSpace(delta.WebhookID)
	if webhookID == "" {
		return fmt.Errorf("sqlstore: webhook id is required")
	}
	if delta.Received < 0 || delta.Failed < 0 {
		return fmt.Errorf("sqlstore: webhook stats increments must not be negative")
	}
	now := s.now().UTC()
	lastReceivedAt := delta.LastReceivedAt.UTC()
	if lastReceivedAt.IsZero() {
		lastReceivedAt = now
	}
	if _, err := s.db.NewRaw(
		incrementWebhookStatsSQL,
		webhookID,
		delta.Received,
		delta.Failed,
		lastReceivedAt,
		now,
		now,
	).Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: increment webhook stats %q: %w", webhookID, err)
	}
	return nil
}

func (s *WebhookStatsStore) Get(ctx context.Context, webhookID string) (WebhookStats, error) {
	if s == nil || s.db == nil {
		return WebhookStats{}, fmt.Errorf("sqlstore: webhook stats store is not configured")
	}
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return WebhookStats{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	record := &webhookStatsRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.webhook_id = ?", webhookID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WebhookStats{}, fmt.Errorf("%w: %q", ErrWebhookStatsNotFound, webhookID)
		}
		return WebhookStats{}, err
	}
	return record.toDomain(), nil
}

func (r *webhookStatsRecord) toDomain() WebhookStats {
	if r == nil {
		return WebhookStats{}
	}
	return WebhookStats{
		WebhookID:      r.WebhookID,
		ReceivedCount:  r.ReceivedCount,
		FailedCount:    r.FailedCount,
		LastReceivedAt: cloneTimePointer(r.LastReceivedAt),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
