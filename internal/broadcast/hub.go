package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub delivers published values to every live subscriber. Each subscriber has
// its own buffered channel; when it is full the value is dropped for that
// subscriber and counted.
type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]chan T
	nextID  uint64
	buffer  int
	replay  bool
	last    T
	hasLast bool
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// New returns a hub whose subscriber channels hold buffer values. With replay
// set, new subscribers receive the last published value first.
func New[T any](buffer int, replay bool) *Hub[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub[T]{
		subs:   make(map[uint64]chan T),
		buffer: buffer,
		replay: replay,
		done:   make(chan struct{}),
	}
}

// NewWithInitial returns a replaying hub that already holds initial.
func NewWithInitial[T any](buffer int, initial T) *Hub[T] {
	h := New[T](buffer, true)
	h.last = initial
	h.hasLast = true
	return h
}

// Subscribe registers a subscriber. The returned channel is closed when ctx is
// done or the hub is closed.
func (h *Hub[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.replay && h.hasLast {
		ch <- h.last
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(id)
		case <-h.done:
		}
	}()

	return ch
}

func (h *Hub[T]) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

// Publish sends v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.last = v
	h.hasLast = true
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
			h.dropped.Add(1)
		}
	}
}

// Last returns the most recently published value.
func (h *Hub[T]) Last() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasLast
}

// Subscribers reports the number of live subscribers.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports values that could not be delivered to a full subscriber.
func (h *Hub[T]) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
