package webhooks

import (
	"context"
	"sync"
)

// MemoryBatchLogSink keeps every inserted batch. Setting Err makes inserts fail.
type MemoryBatchLogSink struct {
	mu      sync.Mutex
	batches [][]BatchLogEntry
	Err     error
}

func NewMemoryBatchLogSink() *MemoryBatchLogSink {
	return &MemoryBatchLogSink{}
}

func (s *MemoryBatchLogSink) InsertBatch(_ context.Context, entries []BatchLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.batches = append(s.batches, append([]BatchLogEntry(nil), entries...))
	return nil
}

func (s *MemoryBatchLogSink) Batches() [][]BatchLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]BatchLogEntry, len(s.batches))
	for i, batch := range s.batches {
		out[i] = append([]BatchLogEntry(nil), batch...)
	}
	return out
}

// MemoryStatsSink accumulates increments per webhook id.
type MemoryStatsSink struct {
	mu     sync.Mutex
	totals map[string]StatsIncrement
	calls  int
	Err    error
}

func NewMemoryStatsSink() *MemoryStatsSink {
	return &MemoryStatsSink{totals: map[string]StatsIncrement{}}
}

func (s *MemoryStatsSink) Increment(_ context.Context, delta StatsIncrement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return s.Err
	}
	total := s.totals[delta.WebhookID]
	total.WebhookID = delta.WebhookID
	total.Received += delta.Received
	total.Failed += delta.Failed
	if delta.LastReceivedAt.After(total.LastReceivedAt) {
		total.LastReceivedAt = delta.LastReceivedAt
	}
	s.totals[delta.WebhookID] = total
	return nil
}

func (s *MemoryStatsSink) Get(webhookID string) (StatsIncrement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, ok := s.totals[webhookID]
	return total, ok
}

func (s *MemoryStatsSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *MemoryStatsSink) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

type MemoryOverflowSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemoryOverflowSink) Spill(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemoryOverflowSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

var (
	_ BatchLogSink = (*MemoryBatchLogSink)(nil)
	_ StatsSink    = (*MemoryStatsSink)(nil)
	_ OverflowSink = (*MemoryOverflowSink)(nil)
)
