package outfile

import (
	"context"
	"sync"
	"time"
)

// node is an element of the queue's singly linked list
type node struct {
	value string
	next  *node
}

// queue is an unbounded FIFO of pending writes. Push never blocks; Pop waits
// for an item up to a timeout.
type queue struct {
	mu   sync.Mutex
	head *node
	tail *node
	size int

	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

// Push appends s to the tail
func (q *queue) Push(s string) {
	q.mu.Lock()
	n := &node{value: s}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes the head without waiting
func (q *queue) TryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil {
		return "", false
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	return n.value, true
}

// Pop removes the head, waiting up to timeout or until ctx is done
func (q *queue) Pop(ctx context.Context, timeout time.Duration) (string, bool) {
	if s, ok := q.TryPop(); ok {
		return s, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if s, ok := q.TryPop(); ok {
				return s, true
			}
		case <-timer.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

// Len returns the number of pending items
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
