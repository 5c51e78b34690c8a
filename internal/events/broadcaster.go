package events

import (
	"context"
	"sync"
	"time"
)

// Broadcaster fans events out to registered listener channels. Listeners that are not
// keeping up miss events rather than stall the sender.
type Broadcaster struct {
	events    chan Event
	listeners map[string]chan<- Event
	mu        sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewBroadcaster creates a broadcaster with an input buffer of size buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{
		events:    make(chan Event, max(buffer, 1)),
		listeners: make(map[string]chan<- Event),
		done:      make(chan struct{}),
	}
}

// Start begins forwarding events until ctx is done or Stop is called.
func (b *Broadcaster) Start(ctx context.Context) {
	go b.run(ctx)
}

// Stop stops forwarding and closes every listener channel.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		defer b.mu.Unlock()

		for _, ch := range b.listeners {
			close(ch)
		}
		b.listeners = make(map[string]chan<- Event)
	})
}

func (b *Broadcaster) RegisterListener(id string, listener chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners[id] = listener
}

func (b *Broadcaster) UnregisterListener(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
}

// Emit queues an event. Progress events are dropped when the buffer is full; completion
// and failure wait for room unless the broadcaster is stopped.
func (b *Broadcaster) Emit(kind Kind, payload any) {
	ev := Event{Kind: kind, Payload: payload, Timestamp: time.Now()}

	select {
	case b.events <- ev:
		return
	case <-b.done:
		return
	default:
	}

	if kind == KindProgress {
		return
	}

	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *Broadcaster) run(ctx context.Context) {
	for {
		select {
		case ev := <-b.events:
			b.broadcast(ev)
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, listener := range b.listeners {
		select {
		case listener <- ev:
		default:
		}
	}
}
