package batchrun

import (
	"context"
	"log"
	"sync"
)

// Queue runs submitted jobs on a single background worker, decoupling job
// submission from execution. Submit returns immediately; jobs run in
// submission order.
type Queue struct {
	jobs   chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a Queue buffering up to size pending jobs and starts its
// worker.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:   make(chan func(context.Context), size),
		ctx:    ctx,
		cancel: cancel,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		job(q.ctx)
	}
}

// Submit enqueues a job and returns immediately. Jobs submitted after Close
// are dropped with a log line rather than panicking.
func (q *Queue) Submit(job func(context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Printf("[QUEUE] job dropped: queue is closed")
		return
	}
	q.jobs <- job
}

// Close stops accepting jobs, cancels the worker context, and waits for the
// in-flight job to return.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
