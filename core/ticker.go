package core

import (
	"sync"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickSource creates the tickers that drive background loops.
type TickSource interface {
	NewTicker(interval time.Duration) Ticker
}

type RealTickSource struct{}

func (RealTickSource) NewTicker(interval time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}

// ManualTicker is a TickSource and Ticker fired explicitly with Tick. It hands
// out itself from NewTicker, so one ManualTicker drives exactly one loop.
type ManualTicker struct {
	ch       chan time.Time
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	interval time.Duration
	Now      func() time.Time
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
		Now:  time.Now,
	}
}

func (t *ManualTicker) NewTicker(interval time.Duration) Ticker {
	t.mu.Lock()
	t.interval = interval
	t.mu.Unlock()
	return t
}

func (t *ManualTicker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *ManualTicker) C() <-chan time.Time {
	return t.ch
}

// Tick blocks until the loop receives the tick, and reports false when the
// ticker was stopped first.
func (t *ManualTicker) Tick() bool {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.ch <- now():
		return true
	case <-t.done:
		return false
	}
}

func (t *ManualTicker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

var (
	_ TickSource = RealTickSource{}
	_ TickSource = (*ManualTicker)(nil)
	_ Ticker     = (*ManualTicker)(nil)
)
