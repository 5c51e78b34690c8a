package engine

import (
	"github.com/google/uuid"
)

type queuedTask struct {
	id    uuid.UUID
	ready bool // false while a retried task waits out its delay
}

// queue is a FIFO of task ids. Retried tasks are appended and skipped until marked ready,
// so a failing task never holds up the tasks behind it.
type queue struct {
	items []*queuedTask
}

func (q *queue) push(id uuid.UUID, ready bool) {
	q.items = append(q.items, &queuedTask{id: id, ready: ready})
}

// popReady removes and returns the first ready task.
func (q *queue) popReady() (uuid.UUID, bool) {
	for i, it := range q.items {
		if !it.ready {
			continue
		}

		q.items = append(q.items[:i], q.items[i+1:]...)
		return it.id, true
	}

	return uuid.Nil, false
}

func (q *queue) remove(id uuid.UUID) bool {
	for i, it := range q.items {
		if it.id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}

	return false
}

func (q *queue) markReady(id uuid.UUID) bool {
	for _, it := range q.items {
		if it.id == id {
			it.ready = true
			return true
		}
	}

	return false
}

func (q *queue) contains(id uuid.UUID) bool {
	for _, it := range q.items {
		if it.id == id {
			return true
		}
	}

	return false
}

func (q *queue) len() int {
	return len(q.items)
}

func (q *queue) ids() []uuid.UUID {
	out := make([]uuid.UUID, len(q.items))
	for i, it := range q.items {
		out[i] = it.id
	}

	return out
}
