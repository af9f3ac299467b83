package reconcile

import "sync"

// signalQueue is a thread-safe FIFO of user ids awaiting a sweep.
//
// Settlements enqueue from request goroutines; the Worker's Run loop
// dequeues. An id already waiting is not added twice.
//
// The queue uses a channel for signaling so Run can wait on it alongside
// ctx.Done() and the poll ticker.
type signalQueue struct {
	mu      sync.Mutex
	ids     []string
	waiting map[string]struct{}
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newSignalQueue() *signalQueue {
	return &signalQueue{
		ids:     make([]string, 0, 16),
		waiting: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds userID to the back of the queue.
// Returns false if the queue is closed.
func (q *signalQueue) Enqueue(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.waiting[userID]; !ok {
		q.waiting[userID] = struct{}{}
		q.ids = append(q.ids, userID)
	}

	// Non-blocking; the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front id without blocking.
func (q *signalQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	delete(q.waiting, id)
	if len(q.ids) == 1 {
		q.ids = q.ids[:0]
	} else {
		q.ids = q.ids[1:]
	}
	return id, true
}

// Wait returns a channel that fires when ids may be available, and is
// closed by Close.
func (q *signalQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting ids.
func (q *signalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Close stops the queue and wakes any waiter.
func (q *signalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
