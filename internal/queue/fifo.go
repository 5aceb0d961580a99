package queue

import (
	"sync"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// FIFO is an unbounded, strictly ordered buffer of pending jobs.
//
// Any number of producers may Push concurrently; the dispatcher's drain loop
// is the single consumer. Push and Pop are serialised by one mutex so neither
// ever blocks on anything but the other.
type FIFO struct {
	mu     sync.Mutex
	items  []domain.Job
	head   int
	closed bool
}

func New() *FIFO {
	return &FIFO{}
}

// Push appends a job to the tail. It reports false, and keeps nothing, once
// the buffer has been closed.
func (q *FIFO) Push(job domain.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, job)
	return true
}

// Pop removes and returns the head job. ok is false when the buffer is empty.
func (q *FIFO) Pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return domain.Job{}, false
	}
	job := q.items[q.head]
	q.items[q.head] = domain.Job{}
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head >= len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return job, true
}

// Len returns the number of jobs waiting.
func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// DrainAll empties the buffer and returns its contents in arrival order.
func (q *FIFO) DrainAll() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}

// Close refuses further pushes and returns the jobs still buffered, in
// arrival order. Later calls return nothing.
func (q *FIFO) Close() []domain.Job {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.DrainAll()
}
