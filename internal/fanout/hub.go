//
//
package fanout

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Hub fans values out to callbacks registered per topic.
//
// LOCK ORDERING:
// 1. h.turn - serializes whole dispatch turns; held while callbacks run
// 2. l.mu   - per listener; held across the removed check and the callback
// 3. h.mu   - protects the listener map; never held while callbacks run
//
// Unsubscribe takes h.mu, then waits on l.mu for an in-flight delivery to
// that listener. A callback unsubscribing itself skips the wait.
type Hub[K comparable, V any] struct {
	turn sync.Mutex

	mu        sync.Mutex
	listeners map[K][]*listener[V]
	closed    bool

	logger *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

type listener[V any] struct {
	fn      func(V)
	mu      sync.Mutex
	removed atomic.Bool
	owner   atomic.Uint64 // goroutine running fn, 0 when idle
}

// Stats is a point-in-time copy of hub counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Panics    uint64
	Listeners int
}

// NewHub creates an empty hub. A nil logger means slog.Default().
func NewHub[K comparable, V any](logger *slog.Logger) *Hub[K, V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub[K, V]{
		listeners: make(map[K][]*listener[V]),
		logger:    logger,
	}
}

// On registers fn under topic. The returned function removes exactly this
// registration; calling it more than once is a no-op. When it returns, fn is
// not running and will not be called again, unless it was called from fn
// itself.
func (h *Hub[K, V]) On(topic K, fn func(V)) (unsubscribe func()) {
	l := &listener[V]{fn: fn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	// Clip forces append to allocate, leaving snapshots held by a running
	// dispatch untouched.
	h.listeners[topic] = append(slices.Clip(h.listeners[topic]), l)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(topic, l) })
	}
}

// remove drops l from the topic slice, then waits out a delivery to l
// running on another goroutine.
func (h *Hub[K, V]) remove(topic K, l *listener[V]) {
	h.detach(topic, l)

	if owner := l.owner.Load(); owner != 0 && owner == goroutineID() {
		return
	}
	l.mu.Lock()
	l.mu.Unlock()
}

func (h *Hub[K, V]) detach(topic K, l *listener[V]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l.removed.Store(true)

	current := h.listeners[topic]
	idx := slices.Index(current, l)
	if idx < 0 {
		return
	}
	next := make([]*listener[V], 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	if len(next) == 0 {
		delete(h.listeners, topic)
		return
	}
	h.listeners[topic] = next
}

// Publish delivers v to every listener of topic and returns the number of
// callbacks invoked. Publish calls are serialized: all deliveries of one
// value complete before the next value is dispatched.
//
// Publish must not be called from inside a callback of the same hub.
func (h *Hub[K, V]) Publish(topic K, v V) int {
	h.turn.Lock()
	defer h.turn.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	snapshot := h.listeners[topic]
	h.mu.Unlock()

	h.published.Add(1)

	delivered := 0
	for _, l := range snapshot {
		if h.invoke(topic, l, v) {
			delivered++
		}
	}
	h.delivered.Add(uint64(delivered))
	return delivered
}

// invoke runs one callback unless it was removed, containing any panic so
// the remaining listeners still receive the value.
func (h *Hub[K, V]) invoke(topic K, l *listener[V], v V) (ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed.Load() {
		return false
	}
	l.owner.Store(goroutineID())
	defer l.owner.Store(0)

	defer func() {
		if r := recover(); r != nil {
			h.panics.Add(1)
			h.logger.Error("listener panicked", "topic", topic, "panic", r)
			ok = false
		}
	}()
	l.fn(v)
	return true
}

// Count returns the number of live registrations for topic.
func (h *Hub[K, V]) Count(topic K) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[topic])
}

// Stats returns current counters.
func (h *Hub[K, V]) Stats() Stats {
	h.mu.Lock()
	n := 0
	for _, ls := range h.listeners {
		n += len(ls)
	}
	h.mu.Unlock()

	return Stats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Panics:    h.panics.Load(),
		Listeners: n,
	}
}

// Close removes every listener. Later registrations are ignored and later
// publishes deliver nothing.
func (h *Hub[K, V]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ls := range h.listeners {
		for _, l := range ls {
			l.removed.Store(true)
		}
	}
	h.listeners = make(map[K][]*listener[V])
	h.closed = true
}
