package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/webhooks"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubWebhookStatsStore struct {
	mu             sync.Mutex
	rows           map[string]WebhookStats
	getCalls       int
	incrementCalls int
	incrementErr   error
}

func newStubWebhookStatsStore() *stubWebhookStatsStore {
	return &stubWebhookStatsStore{rows: map[string]WebhookStats{}}
}

func (s *stubWebhookStatsStore) Get(_ context.Context, webhookID string) (WebhookStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	row, ok := s.rows[webhookID]
	if !ok {
		return WebhookStats{}, fmt.Errorf("%w: %q", ErrWebhookStatsNotFound, webhookID)
	}
	return row, nil
}

func (s *stubWebhookStatsStore) Increment(_ context.Context, delta webhooks.StatsIncrement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrementCalls++
	if s.incrementErr != nil {
		return s.incrementErr
	}
	row := s.rows[delta.WebhookID]
	row.WebhookID = delta.WebhookID
	row.ReceivedCount += delta.Received
	row.FailedCount += delta.Failed
	s.rows[delta.WebhookID] = row
	return nil
}

func (s *stubWebhookStatsStore) gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

func TestCachedWebhookStatsReader_MissFetchThenHit(t *testing.T) {
	base := newStubWebhookStatsStore()
	base.rows["wh-1"] = WebhookStats{WebhookID: "wh-1", ReceivedCount: 4}
	reader, err := NewCachedWebhookStatsReader(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	ctx := context.Background()
	for i := range 3 {
		stats, err := reader.Get(ctx, "wh-1")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if stats.ReceivedCount != 4 {
			t.Fatalf("unexpected stats %+v", stats)
		}
	}
	if base.gets() != 1 {
		t.Fatalf("expected a single base read, got %d", base.gets())
	}
}

func TestCachedWebhookStatsReader_IncrementInvalidates(t *testing.T) {
	base := newStubWebhookStatsStore()
	reader, err := NewCachedWebhookStatsReader(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	ctx := context.Background()

	if err := reader.Increment(ctx, webhooks.StatsIncrement{WebhookID: "wh-1", Received: 2}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := reader.Get(ctx, "wh-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := reader.Increment(ctx, webhooks.StatsIncrement{WebhookID: "wh-1", Received: 3, Failed: 1}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	stats, err := reader.Get(ctx, "wh-1")
	if err != nil {
		t.Fatalf("get after increment: %v", err)
	}
	if stats.ReceivedCount != 5 || stats.FailedCount != 1 {
		t.Fatalf("expected fresh counters after increment, got %+v", stats)
	}
	if base.gets() != 2 {
		t.Fatalf("expected increment to force a second base read, got %d", base.gets())
	}
}

func TestCachedWebhookStatsReader_FailedIncrementKeepsCache(t *testing.T) {
	base := newStubWebhookStatsStore()
	base.rows["wh-1"] = WebhookStats{WebhookID: "wh-1", ReceivedCount: 1}
	reader, err := NewCachedWebhookStatsReader(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	ctx := context.Background()
	if _, err := reader.Get(ctx, "wh-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	base.incrementErr = errors.New("db down")
	if err := reader.Increment(ctx, webhooks.StatsIncrement{WebhookID: "wh-1", Received: 1}); err == nil {
		t.Fatalf("expected increment failure to propagate")
	}
	if _, err := reader.Get(ctx, "wh-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if base.gets() != 1 {
		t.Fatalf("expected cache to survive a failed increment, got %d base reads", base.gets())
	}
}

func TestCachedWebhookStatsReader_PropagatesNotFound(t *testing.T) {
	reader, err := NewCachedWebhookStatsReader(newStubWebhookStatsStore(), newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	if _, err := reader.Get(context.Background(), "wh-404"); !errors.Is(err, ErrWebhookStatsNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := reader.Get(context.Background(), " "); err == nil {
		t.Fatalf("expected empty id to fail")
	}
}

func TestWebhookStatsCacheKey(t *testing.T) {
	key, err := WebhookStatsCacheKey(" hooks/a b ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-integrations::webhook_stats::v1::hooks%2Fa%20b" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
