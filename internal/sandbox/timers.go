package sandbox

import (
	"context"
	"time"

	"github.com/dop251/goja"
)

type timer struct {
	id       int64
	due      time.Time
	interval time.Duration
	fn       goja.Callable
	args     []goja.Value
}

// timerQueue backs setTimeout and setInterval. Timers only fire while the runtime is
// waiting on a call, never in the background.
type timerQueue struct {
	next  int64
	items []*timer
}

func (q *timerQueue) add(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}

	q.next++
	t := &timer{id: q.next, due: time.Now().Add(delay), fn: fn, args: args}
	if repeat {
		t.interval = max(delay, time.Millisecond)
	}

	q.items = append(q.items, t)

	return t.id
}

func (q *timerQueue) cancel(id int64) {
	for i, t := range q.items {
		if t.id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *timerQueue) reset() {
	q.items = nil
}

// earliest returns the timer due first, ignoring intervals when oneShot is set.
func (q *timerQueue) earliest(oneShot bool) (*timer, bool) {
	var first *timer
	for _, t := range q.items {
		if oneShot && t.interval > 0 {
			continue
		}
		if first == nil || t.due.Before(first.due) {
			first = t
		}
	}

	return first, first != nil
}

// runNext waits for and fires the next timer. It reports false when nothing is scheduled.
func (q *timerQueue) runNext(ctx context.Context, oneShot bool) (bool, error) {
	t, ok := q.earliest(oneShot)
	if !ok {
		return false, nil
	}

	if err := sleep(ctx, time.Until(t.due)); err != nil {
		return false, err
	}

	q.cancel(t.id)
	if t.interval > 0 {
		t.due = time.Now().Add(t.interval)
		q.items = append(q.items, t)
	}

	if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
		return false, err
	}

	return true, nil
}

// drain fires one-shot timers until none remain.
func (q *timerQueue) drain(ctx context.Context) error {
	for {
		ok, err := q.runNext(ctx, true)
		if err != nil || !ok {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
