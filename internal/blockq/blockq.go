// Package blockq is an unbounded FIFO whose Take blocks until an item
// arrives or the queue is closed.
package blockq

import (
	"sync"

	"github.com/eapache/queue"
)

type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *queue.Queue
	closed bool
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{items: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends v. It reports false once the queue is closed.
func (q *Queue[T]) Put(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items.Add(v)
	q.cond.Signal()
	return true
}

// Take removes the oldest item, blocking while the queue is empty. ok is
// false once the queue has been closed; pending items are abandoned.
func (q *Queue[T]) Take() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && q.items.Length() == 0 {
		q.cond.Wait()
	}
	if q.closed {
		return v, false
	}
	v, _ = q.items.Remove().(T)
	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close wakes every blocked Take. Further Puts are refused.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
