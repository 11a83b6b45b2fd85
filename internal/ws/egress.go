package ws

import (
	"sync"

	"github.com/collabgraph/server/internal/collab"
	"github.com/collabgraph/server/internal/models"
)

// egressCapacity is the suggested bounded queue capacity per §4.C.
const egressCapacity = 1024

// egressQueue is a single-producer (the owning Session Actor via
// Connection.Send), single-consumer (this connection's write pump)
// bounded queue. It additionally implements the optional per-recipient
// UPDATE_TRANSFORM coalescing of §4.C: a queued, unsent transform
// update for the same (object_id, source_user_id) is replaced in
// place rather than appended, trading dropped intermediate transforms
// for bounded wire volume. This affects only what is sent over the
// wire, never Session State or the durable log.
type egressQueue struct {
	mu     sync.Mutex
	buf    []collab.OutFrame
	notify chan struct{}
	closed bool
}

func newEgressQueue() *egressQueue {
	return &egressQueue{notify: make(chan struct{}, 1)}
}

// push enqueues frame, returning false if the queue is closed or full.
func (q *egressQueue) push(frame collab.OutFrame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if frame.Coalesce {
		for i := range q.buf {
			if q.buf[i].Coalesce &&
				q.buf[i].Envelope.EventType == models.EventTransformUpdate &&
				q.buf[i].ObjectID == frame.ObjectID &&
				q.buf[i].SourceUserID == frame.SourceUserID {
				q.buf[i] = frame
				q.mu.Unlock()
				q.wake()
				return true
			}
		}
	}
	if len(q.buf) >= egressCapacity {
		q.mu.Unlock()
		return false
	}
	q.buf = append(q.buf, frame)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *egressQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest queued frame, if any.
func (q *egressQueue) pop() (collab.OutFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return collab.OutFrame{}, false
	}
	frame := q.buf[0]
	q.buf = q.buf[1:]
	return frame, true
}

// close marks the queue closed; further push calls fail.
func (q *egressQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
