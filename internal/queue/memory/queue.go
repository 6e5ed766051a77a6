// Package memory provides an in-process work queue.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Queue is an unbounded FIFO with blocking, context-aware Get and a Join that
// waits until every item put on the queue has been acknowledged with
// TaskDone.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int
	wake       chan struct{}
	idle       chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		wake: make(chan struct{}),
		idle: make(chan struct{}),
	}
}

// Put appends an item. It never blocks.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.unfinished++
	close(q.wake)
	q.wake = make(chan struct{})
}

// Get removes the oldest item, blocking until one is available or ctx ends.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wake:
		}
	}
}

// TryGet removes the oldest item without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// TaskDone acknowledges one item previously returned by Get or TryGet.
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		panic("memory.Queue: TaskDone called too many times")
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
		q.idle = make(chan struct{})
	}
}

// Join blocks until every item put so far has been acknowledged, or ctx ends.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("join canceled: %w", ctx.Err())
	case <-idle:
		return nil
	}
}

// Len returns the number of items waiting to be taken.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
