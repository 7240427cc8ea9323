package webhooks

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type QueueStats struct {
	Length          int
	MaxSize         int
	Policy          string
	Evicted         int64
	Rejected        int64
	Dropped         int64
	PendingOverflow int
}

// Queue is a FIFO of verified events. Push never blocks. When MaxSize is
// reached the overflow policy decides: drop_oldest evicts the head into an
// overflow buffer, reject_new refuses the event with a *QueueFullError.
// MaxSize zero disables the bound.
type Queue struct {
	mu       sync.Mutex
	items    []Event
	overflow []Event
	maxSize  int
	policy   string
	evicted  int64
	rejected int64
	dropped  int64
	now      func() time.Time
}

type QueueOption func(*Queue)

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewQueue(cfg core.QueueConfig, opts ...QueueOption) *Queue {
	policy := strings.TrimSpace(strings.ToLower(cfg.OverflowPolicy))
	if policy == "" {
		policy = core.OverflowDropOldest
	}
	maxSize := cfg.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	q := &Queue{
		maxSize: maxSize,
		policy:  policy,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Push appends event and returns it with its id and receive time filled in.
func (q *Queue) Push(event Event) (Event, error) {
	event = event.normalized(q.now)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		if q.policy == core.OverflowRejectNew {
			q.rejected++
			return event, &QueueFullError{MaxSize: q.maxSize}
		}
		q.evictLocked()
	}
	q.items = append(q.items, event)
	return event, nil
}

func (q *Queue) evictLocked() {
	head := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	q.evicted++
	if len(q.overflow) >= q.maxSize {
		q.dropped++
		return
	}
	q.overflow = append(q.overflow, head)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns up to n of the oldest events.
func (q *Queue) Drain(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Event, n)
	copy(out, q.items[:n])
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return out
}

// TakeOverflow returns and clears the events evicted since the last call.
func (q *Queue) TakeOverflow() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.overflow
	q.overflow = nil
	return out
}

// CountDropped records overflow events that could not be spilled.
func (q *Queue) CountDropped(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.dropped += int64(n)
	q.mu.Unlock()
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Length:          len(q.items),
		MaxSize:         q.maxSize,
		Policy:          q.policy,
		Evicted:         q.evicted,
		Rejected:        q.rejected,
		Dropped:         q.dropped,
		PendingOverflow: len(q.overflow),
	}
}
