// Package queue defines the contract for enqueuing and consuming index
// refresh jobs.
//
// Implementations may use channels or more advanced structures; the service
// runs on an in-memory bounded queue.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/macrolens/evhist/pkg/metrics"
)

// Default queue configuration constants.
const defaultQueueCapacity = 64

// RefreshJob asks the refresh workers to re-check the on-disk sources.
type RefreshJob struct {
	// Reason records what produced the job: ticker, admin, or lookup.
	Reason string

	// Forced skips the source-signature check and always rebuilds.
	Forced bool

	RequestedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full and the job was dropped.
	Enqueue(ctx context.Context, job RefreshJob) bool

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan RefreshJob

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new jobs can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan RefreshJob
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan RefreshJob, q.capacity)

	metrics.UpdateRefreshQueueCapacity(q.capacity)
	metrics.UpdateRefreshQueueSize(0)

	return q
}

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job RefreshJob) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordRefreshDropped()
		metrics.RecordErrorByComponent("refresh_queue", "closed")
		return false
	}

	select {
	case q.jobs <- job:
		metrics.RecordRefreshEnqueued()
		metrics.UpdateRefreshQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordRefreshDropped()
		metrics.RecordErrorByComponent("refresh_queue", "context_cancelled")
		return false
	default:
		metrics.RecordRefreshDropped()
		metrics.RecordErrorByComponent("refresh_queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan RefreshJob {
	out := make(chan RefreshJob)
	go func() {
		defer close(out)
		for job := range q.jobs {
			select {
			case out <- job:
				metrics.UpdateRefreshQueueSize(len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.jobs)
	metrics.UpdateRefreshQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
