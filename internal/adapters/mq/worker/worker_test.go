package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/macrolens/evhist/internal/adapters/mq/queue"
	"github.com/macrolens/evhist/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

// countingRefresher records every Refresh call.
type countingRefresher struct {
	mu     sync.Mutex
	calls  []bool // forced flag per call
	reply  bool
	err    error
	signal chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context, forced bool) (bool, error) {
	r.mu.Lock()
	r.calls = append(r.calls, forced)
	r.mu.Unlock()
	if r.signal != nil {
		r.signal <- struct{}{}
	}
	return r.reply, r.err
}

func (r *countingRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWorkerProcessesJobs(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(8))
	ref := &countingRefresher{reply: true, signal: make(chan struct{}, 8)}
	w := NewInMemoryWorker(q, ref, WithName("test-worker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Enqueue(ctx, queue.RefreshJob{Reason: "ticker", RequestedAt: time.Now()})
	q.Enqueue(ctx, queue.RefreshJob{Reason: "admin", Forced: true, RequestedAt: time.Now()})

	for i := 0; i < 2; i++ {
		select {
		case <-ref.signal:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not process job in time")
		}
	}

	ref.mu.Lock()
	defer ref.mu.Unlock()
	if len(ref.calls) != 2 {
		t.Fatalf("expected 2 refresh calls, got %d", len(ref.calls))
	}
	if ref.calls[0] || !ref.calls[1] {
		t.Errorf("forced flags not forwarded: %v", ref.calls)
	}
}

func TestWorkerSurvivesRefreshError(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(8))
	ref := &countingRefresher{err: errors.New("disk gone"), signal: make(chan struct{}, 8)}
	w := NewInMemoryWorker(q, ref)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Enqueue(ctx, queue.RefreshJob{Reason: "ticker"})
	q.Enqueue(ctx, queue.RefreshJob{Reason: "ticker"})

	for i := 0; i < 2; i++ {
		select {
		case <-ref.signal:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after refresh error")
		}
	}
}

func TestWorkerShutdown(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(8))
	w := NewInMemoryWorker(q, &countingRefresher{})

	ctx := context.Background()
	go w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestPool(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(32))
	ref := &countingRefresher{reply: true, signal: make(chan struct{}, 32)}
	pool := NewPool(3, q, ref)

	ctx := context.Background()
	pool.Start(ctx)

	const jobs = 10
	for i := 0; i < jobs; i++ {
		q.Enqueue(ctx, queue.RefreshJob{Reason: "ticker", RequestedAt: time.Now()})
	}

	for i := 0; i < jobs; i++ {
		select {
		case <-ref.signal:
		case <-time.After(2 * time.Second):
			t.Fatalf("pool processed only %d of %d jobs", ref.callCount(), jobs)
		}
	}

	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("pool shutdown failed: %v", err)
	}
	if !q.IsClosed() {
		t.Error("pool shutdown should close the queue")
	}
}
