package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultSyncLogPerPage = 25
	maxSyncLogPerPage     = 500
)

// SyncLogFilter narrows ListSyncLogs. Zero values match everything.
type SyncLogFilter struct {
	IntegrationID string
	Status        string
	ResourceType  string
	From          *time.Time
	To            *time.Time
	Page          int
	PerPage       int
}

type SyncLogPage struct {
	Items   []webhooks.BatchLogEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// SyncLogStore persists one row per processed webhook event.
type SyncLogStore struct {
	db   *bun.DB
	repo repository.Repository[*syncLogRecord]
}

func NewSyncLogStore(db *bun.DB) (*SyncLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncLogRecord](db, syncLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync log repository wiring: %w", err)
		}
	}
	return &SyncLogStore{db: db, repo: repo}, nil
}

// InsertBatch writes every entry of a batch in a single statement.
func (s *SyncLogStore) InsertBatch(ctx context.Context, entries []webhooks.BatchLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync log store is not configured")
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]*syncLogRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, newSyncLogRecord(entry, now))
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: insert %d sync logs: %w", len(records), err)
	}
	return nil
}

func (s *SyncLogStore) List(ctx context.Context, filter SyncLogFilter) (SyncLogPage, error) {
	if s == nil || s.repo == nil {
		return SyncLogPage{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultSyncLogPerPage
	}
	if perPage > maxSyncLogPerPage {
		perPage = maxSyncLogPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("completed_at DESC"),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(perPage, offset),
	}
	if integrationID := strings.TrimSpace(filter.IntegrationID); integrationID != "" {
		selectors = append(selectors, repository.SelectBy("integration_id", "=", integrationID))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if resourceType := strings.TrimSpace(filter.ResourceType); resourceType != "" {
		selectors = append(selectors, repository.SelectBy("resource_type", "=", resourceType))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("completed_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("completed_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return SyncLogPage{}, err
	}
	items := make([]webhooks.BatchLogEntry, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return SyncLogPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

func newSyncLogRecord(entry webhooks.BatchLogEntry, now time.Time) *syncLogRecord {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	completedAt := entry.CompletedAt.UTC()
	if completedAt.IsZero() {
		completedAt = now
	}
	startedAt := entry.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = completedAt
	}
	return &syncLogRecord{
		ID:               id,
		IntegrationID:    strings.TrimSpace(entry.IntegrationID),
		SyncType:         entry.SyncType,
		Direction:        entry.Direction,
		Status:           entry.Status,
		ResourceType:     entry.ResourceType,
		ResourceCount:    entry.ResourceCount,
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		DurationMs:       entry.DurationMs,
		RecordsProcessed: entry.RecordsProcessed,
		RecordsCreated:   entry.RecordsCreated,
		RecordsFailed:    entry.RecordsFailed,
		ErrorMessage:     entry.ErrorMessage,
		Metadata:         copyAnyMap(entry.Metadata),
		CreatedAt:        now,
	}
}

func (r *syncLogRecord) toDomain() webhooks.BatchLogEntry {
	if r == nil {
		return webhooks.BatchLogEntry{}
	}
	return webhooks.BatchLogEntry{
		ID:               r.ID,
		IntegrationID:    r.IntegrationID,
		SyncType:         r.SyncType,
		Direction:        r.Direction,
		Status:           r.Status,
		ResourceType:     r.ResourceType,
		ResourceCount:    r.ResourceCount,
		StartedAt:        r.StartedAt.UTC(),
		CompletedAt:      r.CompletedAt.UTC(),
		DurationMs:       r.DurationMs,
		RecordsProcessed: r.RecordsProcessed,
		RecordsCreated:   r.RecordsCreated,
		RecordsFailed:    r.RecordsFailed,
		ErrorMessage:     r.ErrorMessage,
		Metadata:         copyAnyMap(r.Metadata),
	}
}
