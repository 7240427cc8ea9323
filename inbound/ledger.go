package inbound

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultDeliveryTTL = 10 * time.Minute

// DeliveryLedger remembers delivery ids so provider redeliveries of an event
// that was already queued are acknowledged without queueing it twice.
type DeliveryLedger interface {
	// Claim reports whether key is new. A false result means a live claim
	// already exists.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a redelivery can be queued.
	Release(ctx context.Context, key string) error
}

type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		expires: map[string]time.Time{},
		now:     time.Now,
	}
}

// WithClock replaces the ledger clock, for tests.
func (l *MemoryDeliveryLedger) WithClock(now func() time.Time) *MemoryDeliveryLedger {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *MemoryDeliveryLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = defaultDeliveryTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpiredLocked(now)
	if expiresAt, exists := l.expires[key]; exists && now.Before(expiresAt) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryDeliveryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, strings.TrimSpace(key))
	return nil
}

func (l *MemoryDeliveryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.expires)
}

func (l *MemoryDeliveryLedger) evictExpiredLocked(now time.Time) {
	for key, expiresAt := range l.expires {
		if !now.Before(expiresAt) {
			delete(l.expires, key)
		}
	}
}
