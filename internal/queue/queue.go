// Package queue provides a bounded in-memory queue with context-aware
// operations.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO safe for concurrent producers and consumers.
type Queue[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// New constructs a queue with the provided capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryEnqueue pushes an item without blocking and reports whether it fit.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Dequeue pops the next item. Items enqueued before Close are still
// returned; after that Dequeue reports ErrClosed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return zero, ErrClosed
		}
		return item, nil
	}
}

// Len reports how many items are waiting.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops accepting items.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
