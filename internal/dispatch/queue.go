package dispatch

import (
	"sync"
	"time"
)

// envelope is a queued job plus its bookkeeping.
type envelope struct {
	id       string
	job      Job
	queuedAt time.Time
}

// jobQueue is an unbounded FIFO with many producers and one consumer.
type jobQueue struct {
	mu    sync.Mutex
	items []envelope
	wake  chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{wake: make(chan struct{}, 1)}
}

// Push appends e. It never blocks.
func (q *jobQueue) Push(e envelope) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Take removes the oldest envelope, waiting up to timeout for one to
// arrive. It returns false on timeout or when stop is closed.
func (q *jobQueue) Take(timeout time.Duration, stop <-chan struct{}) (envelope, bool) {
	if e, ok := q.pop(); ok {
		return e, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if e, ok := q.pop(); ok {
				return e, true
			}
		case <-timer.C:
			return q.pop()
		case <-stop:
			return envelope{}, false
		}
	}
}

func (q *jobQueue) pop() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return envelope{}, false
	}
	e := q.items[0]
	q.items[0] = envelope{}
	q.items = q.items[1:]
	return e, true
}

// Len returns the number of queued envelopes.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DrainAll removes and returns everything still queued, oldest first.
func (q *jobQueue) DrainAll() []envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
