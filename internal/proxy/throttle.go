package proxy

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum gap between consecutive dispatches of any caller.
// The wait happens while holding the lock, so callers are serialized through one shared clock.
type Throttle struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
	now   func() time.Time
}

func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{delay: delay, now: time.Now}
}

// Wait blocks until the minimum delay since the previous dispatch has elapsed, then
// records a new dispatch.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if wait := t.delay - t.now().Sub(t.last); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	t.last = t.now()

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
