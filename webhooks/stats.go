package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type statsCounters struct {
	received       int64
	failed         int64
	lastReceivedAt time.Time
}

// StatsAggregator buffers per-webhook received/failed counts in memory and
// flushes them as one increment per webhook. A delta whose increment fails is
// merged back into the buffer for the next flush.
type StatsAggregator struct {
	mu       sync.Mutex
	buffer   map[string]statsCounters
	sink     StatsSink
	now      func() time.Time
	observer core.Observer
}

type StatsOption func(*StatsAggregator)

func WithStatsClock(now func() time.Time) StatsOption {
	return func(a *StatsAggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithStatsLogger(logger core.Logger) StatsOption {
	return func(a *StatsAggregator) {
		a.observer.Logger = logger
	}
}

func WithStatsMetricsRecorder(recorder core.MetricsRecorder) StatsOption {
	return func(a *StatsAggregator) {
		if recorder != nil {
			a.observer.Metrics = recorder
		}
	}
}

func NewStatsAggregator(sink StatsSink, opts ...StatsOption) *StatsAggregator {
	a := &StatsAggregator{
		buffer:   map[string]statsCounters{},
		sink:     sink,
		now:      time.Now,
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *StatsAggregator) Record(webhookID string, failed bool, receivedAt time.Time) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	counters := a.buffer[webhookID]
	counters.received++
	if failed {
		counters.failed++
	}
	if receivedAt.After(counters.lastReceivedAt) {
		counters.lastReceivedAt = receivedAt
	}
	a.buffer[webhookID] = counters
}

// Pending returns a copy of the unflushed deltas keyed by webhook id.
func (a *StatsAggregator) Pending() map[string]StatsIncrement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]StatsIncrement, len(a.buffer))
	for webhookID, counters := range a.buffer {
		out[webhookID] = counters.increment(webhookID)
	}
	return out
}

func (a *StatsAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Flush takes the buffer and issues one increment per webhook id. It returns
// how many increments were applied and the joined failures.
func (a *StatsAggregator) Flush(ctx context.Context) (int, error) {
	if a.sink == nil {
		return 0, fmt.Errorf("webhooks: stats sink is required")
	}
	a.mu.Lock()
	taken := a.buffer
	a.buffer = map[string]statsCounters{}
	a.mu.Unlock()
	if len(taken) == 0 {
		return 0, nil
	}

	webhookIDs := make([]string, 0, len(taken))
	for webhookID := range taken {
		webhookIDs = append(webhookIDs, webhookID)
	}
	sort.Strings(webhookIDs)

	flushed := 0
	var errs []error
	for _, webhookID := range webhookIDs {
		counters := taken[webhookID]
		delta := counters.increment(webhookID)
		if delta.LastReceivedAt.IsZero() {
			delta.LastReceivedAt = a.now().UTC()
		}
		if err := a.sink.Increment(ctx, delta); err != nil {
			a.restore(webhookID, counters)
			errs = append(errs, fmt.Errorf("webhooks: increment stats for %s: %w", webhookID, err))
			a.observer.Error(ctx, "failed to update webhook stats", map[string]any{
				"webhook_id": webhookID,
				"received":   delta.Received,
				"failed":     delta.Failed,
				"error":      err.Error(),
			})
			continue
		}
		flushed++
	}

	a.observer.Count(ctx, "webhooks.stats.flush", int64(flushed), nil)
	a.observer.Info(ctx, "webhook stats flushed", map[string]any{
		"count":  flushed,
		"failed": len(errs),
	})
	return flushed, errors.Join(errs...)
}

func (a *StatsAggregator) restore(webhookID string, delta statsCounters) {
	a.mu.Lock()
	defer a.mu.Unlock()
	counters := a.buffer[webhookID]
	counters.received += delta.received
	counters.failed += delta.failed
	if delta.lastReceivedAt.After(counters.lastReceivedAt) {
		counters.lastReceivedAt = delta.lastReceivedAt
	}
	a.buffer[webhookID] = counters
}

func (c statsCounters) increment(webhookID string) StatsIncrement {
	return StatsIncrement{
		WebhookID:      webhookID,
		Received:       c.received,
		Failed:         c.failed,
		LastReceivedAt: c.lastReceivedAt,
	}
}
