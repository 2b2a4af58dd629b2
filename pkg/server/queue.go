package server

import (
	"sync"
	"time"

	"github.com/cyvasse-online/server/pkg/domain"
)

// Job is one inbound message tagged with the connection it arrived on.
type Job struct {
	Conn     domain.ConnID
	Payload  []byte
	Received time.Time
}

// JobQueue is an unbounded FIFO with a blocking Dequeue. It is safe for
// any number of producers and consumers.
type JobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Job
	closed bool
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	q := &JobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends job and wakes one waiting consumer.
func (q *JobQueue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.items = append(q.items, job)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Dequeue blocks until a job is available or the queue is closed. The
// second result is false once the queue has been closed.
func (q *JobQueue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && len(q.items) == 0 {
		q.cond.Wait()
	}
	if q.closed {
		return Job{}, false
	}

	job := q.items[0]
	q.items[0] = Job{}
	q.items = q.items[1:]
	return job, true
}

// Close wakes every blocked consumer. Jobs still queued are abandoned.
func (q *JobQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
