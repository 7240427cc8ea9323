package transport

import (
	"context"
	"time"
)

type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff yields Initial*2^attempt, capped at Max.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{Initial: time.Second, Max: 10 * time.Second}
}

func (p ExponentialBackoff) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := initial
	for i := 0; i < attempt; i++ {
		if delay >= maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
