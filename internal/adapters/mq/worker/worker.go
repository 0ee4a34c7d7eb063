// Package worker drains the refresh queue and keeps the offset index warm.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/macrolens/evhist/internal/adapters/mq/queue"
	"github.com/macrolens/evhist/pkg/logger"
	"github.com/macrolens/evhist/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 1
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Refresher re-checks the on-disk sources and rebuilds the index when they
// changed. A forced refresh rebuilds unconditionally.
type Refresher interface {
	Refresh(ctx context.Context, forced bool) (rebuilt bool, err error)
}

// Queue defines how workers receive refresh jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.RefreshJob
}

// Worker processes refresh jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over an in-memory job queue.
type InMemoryWorker struct {
	queue     Queue
	refresher Refresher
	name      string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, refresher Refresher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		refresher: refresher,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobChan:
			if !ok {
				return
			}
			w.processJob(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob runs a single refresh job.
func (w *InMemoryWorker) processJob(ctx context.Context, job queue.RefreshJob) {
	rebuilt, err := w.refresher.Refresh(ctx, job.Forced)
	if err != nil {
		metrics.RecordRefreshError()
		metrics.RecordErrorByComponent("worker", "refresh_error")
		w.logger.Error(ctx, "refresh failed",
			logger.String("reason", job.Reason),
			logger.Bool("forced", job.Forced),
			logger.Error(err),
		)
		return
	}

	if rebuilt {
		metrics.RecordRefreshRun()
		w.logger.Info(ctx, "index refreshed",
			logger.String("reason", job.Reason),
			logger.Duration("queued_for", time.Since(job.RequestedAt)),
		)
	} else {
		metrics.RecordRefreshSkipped()
		w.logger.Debug(ctx, "refresh skipped, sources unchanged",
			logger.String("reason", job.Reason),
		)
	}
}

// Pool manages multiple refresh workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	refresher Refresher

	// Shutdown control
	shutdown chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, refresher Refresher) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		refresher: refresher,
		shutdown:  make(chan struct{}),
		logger:    logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			refresher,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateRefreshWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new jobs
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
