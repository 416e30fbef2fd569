package service

import (
	"context"
	"sync"
)

// ingestQueue is an in-memory FIFO of positions awaiting background
// ingestion. A position already pending is not enqueued twice.
type ingestQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []queuedPosition
	pending map[string]bool
}

type queuedPosition struct {
	raw       string // original description, move counters intact
	canonical string
}

func newIngestQueue() *ingestQueue {
	q := &ingestQueue{pending: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a position; duplicate pending positions are a no-op.
func (q *ingestQueue) Enqueue(raw, canonical string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[canonical] {
		return false
	}
	q.pending[canonical] = true
	q.items = append(q.items, queuedPosition{raw: raw, canonical: canonical})
	q.cond.Signal()
	return true
}

// Dequeue blocks until an item is available or the context is done.
func (q *ingestQueue) Dequeue(ctx context.Context) (queuedPosition, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return queuedPosition{}, ctx.Err()
		default:
		}

		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			delete(q.pending, item.canonical)
			return item, nil
		}

		// Wait for an item, waking up if the context is cancelled. Taking
		// the lock before broadcasting guarantees Wait is registered first.
		// The watcher is released when the wait ends so idle cycles do not
		// accumulate goroutines for the worker's lifetime.
		done := make(chan struct{})
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
				close(done)
			case <-stop:
			}
		}()
		q.cond.Wait()
		select {
		case <-done:
			return queuedPosition{}, ctx.Err()
		default:
			close(stop)
		}
	}
}

// Len reports the number of queued positions.
func (q *ingestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
