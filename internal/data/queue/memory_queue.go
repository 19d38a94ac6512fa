package queue

import (
	"context"
	"io"
	"sync"
	"time"

	"dtsresolve/internal/core/ports"
)

var _ ports.WriteQueuePort = (*MemoryQueue)(nil)

// MemoryQueue buffers pending cache writes keyed by cache key. A write to a
// key that is still pending replaces the buffered value in place and keeps
// its position, so capacity counts distinct keys. Enqueue never blocks.
type MemoryQueue struct {
	mu       sync.Mutex
	capacity int
	order    []string
	values   map[string]string
	closed   bool
	ready    chan struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{
		capacity: capacity,
		values:   make(map[string]string, capacity),
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue buffers req. It reports EnqueueDropped when the queue is closed or
// holds capacity distinct keys and req.Key is not one of them.
func (q *MemoryQueue) Enqueue(req ports.WriteRequest) ports.EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ports.EnqueueDropped
	}
	if _, pending := q.values[req.Key]; pending {
		q.values[req.Key] = req.Value
		return ports.EnqueueAccepted
	}
	if len(q.order) >= q.capacity {
		return ports.EnqueueDropped
	}
	q.order = append(q.order, req.Key)
	q.values[req.Key] = req.Value
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return ports.EnqueueAccepted
}

// DequeueBatch waits up to wait for pending writes and returns at most
// maxItems of them, oldest key first. A zero wait polls. io.EOF marks a
// closed queue; it accompanies the final batch.
func (q *MemoryQueue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]ports.WriteRequest, error) {
	if maxItems <= 0 {
		maxItems = 1
	}

	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if batch, ok, err := q.take(maxItems); ok {
			return batch, err
		}
		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		}
	}
}

// take pops up to n writes. ok is false when nothing is pending on an open
// queue.
func (q *MemoryQueue) take(n int) ([]ports.WriteRequest, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		if q.closed {
			return nil, true, io.EOF
		}
		return nil, false, nil
	}
	if n > len(q.order) {
		n = len(q.order)
	}
	batch := make([]ports.WriteRequest, 0, n)
	for _, key := range q.order[:n] {
		batch = append(batch, ports.WriteRequest{Key: key, Value: q.values[key]})
		delete(q.values, key)
	}
	q.order = append(q.order[:0], q.order[n:]...)
	if q.closed && len(q.order) == 0 {
		return batch, true, io.EOF
	}
	return batch, true, nil
}

// Close stops accepting writes. Pending writes can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
	return nil
}

// Len is the number of distinct keys pending.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
