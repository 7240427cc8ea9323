package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/webhooks"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const webhookStatsCacheKeyPrefix = "go-integrations::webhook_stats::v1"

type WebhookStatsReader interface {
	Get(ctx context.Context, webhookID string) (WebhookStats, error)
}

type webhookStatsStore interface {
	WebhookStatsReader
	webhooks.StatsSink
}

// CachedWebhookStatsReader serves counter reads from a cache and drops the
// cached row whenever an increment goes through it.
type CachedWebhookStatsReader struct {
	base  webhookStatsStore
	cache repositorycache.CacheService
}

func NewCachedWebhookStatsReader(
	base webhookStatsStore,
	cacheService repositorycache.CacheService,
) (*CachedWebhookStatsReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook stats store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook stats cache service is required")
	}
	return &CachedWebhookStatsReader{base: base, cache: cacheService}, nil
}

// WebhookStatsCacheKey returns go-integrations::webhook_stats::v1::<webhook_id>
// with the id URL-path escaped.
func WebhookStatsCacheKey(webhookID string) (string, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return "", fmt.Errorf("sqlstore: webhook id is required")
	}
	return webhookStatsCacheKeyPrefix + "::" + url.PathEscape(webhookID), nil
}

func (s *CachedWebhookStatsReader) Get(ctx context.Context, webhookID string) (WebhookStats, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return WebhookStats{}, fmt.Errorf("sqlstore: cached webhook stats reader is not configured")
	}
	webhookID = strings.TrimSpace(webhookID)
	cacheKey, err := WebhookStatsCacheKey(webhookID)
	if err != nil {
		return WebhookStats{}, err
	}
	stats, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (WebhookStats, error) {
		return s.base.Get(ctx, webhookID)
	})
	if err != nil {
		return WebhookStats{}, err
	}
	stats.LastReceivedAt = cloneTimePointer(stats.LastReceivedAt)
	return stats, nil
}

func (s *CachedWebhookStatsReader) Increment(ctx context.Context, delta webhooks.StatsIncrement) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook stats reader is not configured")
	}
	cacheKey, err := WebhookStatsCacheKey(delta.WebhookID)
	if err != nil {
		return err
	}
	if err := s.base.Increment(ctx, delta); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var (
	_ webhooks.StatsSink    = (*CachedWebhookStatsReader)(nil)
	_ webhooks.StatsSink    = (*WebhookStatsStore)(nil)
	_ webhooks.BatchLogSink = (*SyncLogStore)(nil)
	_ WebhookStatsReader    = (*WebhookStatsStore)(nil)
)
