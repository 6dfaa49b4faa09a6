package queue

import (
	"context"
	"sync"
)

// MemoryQueue buffers jobs in memory. It backs tests and
// single-process hosts that drain synchronously.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Jobs returns a snapshot of the pending jobs in FIFO order.
func (q *MemoryQueue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Len reports the number of pending jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Drain runs pending jobs through the runner in FIFO order, removing
// each job as it is taken. It stops at the first runner error; jobs
// enqueued by the runner itself are drained too.
func (q *MemoryQueue) Drain(ctx context.Context, r Runner) error {
	for {
		job := q.pop()
		if job == nil {
			return nil
		}
		if err := r.Run(ctx, job); err != nil {
			return err
		}
	}
}

func (q *MemoryQueue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job
}
