package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Pop and Push once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Job identifies one processing attempt for an artifact. ContentRef is
// captured at enqueue time so the worker can derive file paths without a
// store round trip.
type Job struct {
	ArtifactID int64
	Name       string
	ContentRef string
	EnqueuedAt time.Time
}

// Queue is an unbounded FIFO safe for concurrent producers and consumers.
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	signal chan struct{}
	closed bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends a job. It never blocks.
func (q *Queue) Push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	q.jobs = append(q.jobs, job)
	q.notifyLocked()
	return nil
}

// PushUnique appends a job unless one for the same artifact is already
// waiting. It reports whether the job was added.
func (q *Queue) PushUnique(job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}
	if q.containsLocked(job.ArtifactID) {
		return false, nil
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	q.jobs = append(q.jobs, job)
	q.notifyLocked()
	return true, nil
}

// Pop removes and returns the oldest job, blocking until one is available.
func (q *Queue) Pop(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = Job{}
			q.jobs = q.jobs[1:]
			if len(q.jobs) > 0 {
				q.notifyLocked()
			}
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Job{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Snapshot returns a copy of the waiting jobs in FIFO order.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Len reports the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Contains reports whether a job for artifactID is waiting.
func (q *Queue) Contains(artifactID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.containsLocked(artifactID)
}

// Close rejects further pushes, discards waiting jobs, and wakes blocked
// consumers. It returns the number of discarded jobs.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.jobs)
	q.jobs = nil
	close(q.signal)
	return dropped
}

func (q *Queue) containsLocked(artifactID int64) bool {
	for _, job := range q.jobs {
		if job.ArtifactID == artifactID {
			return true
		}
	}
	return false
}

func (q *Queue) notifyLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
