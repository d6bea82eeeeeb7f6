//
//
package telemetry

import (
	"sync"
	"time"
)

// frameQueue is the unbounded FIFO between producers (the socket reader and
// the connect/disconnect paths) and the single dispatch goroutine. Producers
// never block, so a listener may call Connect or Disconnect from inside a
// delivery.
type frameQueue struct {
	mu     sync.Mutex
	items  []Frame
	seq    map[Topic]uint64
	notify chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		seq:    make(map[Topic]uint64, len(Topics)),
		notify: make(chan struct{}, 1),
	}
}

// push stamps f with the next sequence number of its topic and enqueues it.
func (q *frameQueue) push(f Frame) {
	q.mu.Lock()
	q.seq[f.Topic]++
	f.Seq = q.seq[f.Topic]
	if f.Received.IsZero() {
		f.Received = time.Now()
	}
	q.items = append(q.items, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest frame.
func (q *frameQueue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Frame{}, false
	}
	f := q.items[0]
	q.items[0] = Frame{}
	q.items = q.items[1:]
	return f, true
}

// pending returns the number of queued frames.
func (q *frameQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
