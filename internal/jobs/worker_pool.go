// Package jobs runs background work: the escalation timer scanner and the
// worker pool that takes notification and paging work off the ingest path.
package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/akmatori/responder/internal/metrics"
)

type task struct {
	name string
	fn   func(ctx context.Context)
}

// WorkerPool runs submitted tasks on a fixed number of goroutines fed by a
// bounded queue. Submit never blocks; a full queue drops the task.
type WorkerPool struct {
	queue  chan task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool starts count workers over a queue of queueSize tasks
func NewWorkerPool(count, queueSize int) *WorkerPool {
	if count <= 0 {
		count = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		queue:  make(chan task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *WorkerPool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Worker pool: task panicked", zap.String("task", t.name), zap.Any("panic", r))
		}
	}()
	t.fn(p.ctx)
}

// Submit queues fn and reports whether it was accepted
func (p *WorkerPool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		zap.L().Warn("Worker pool: submit after stop", zap.String("task", name))
		metrics.AsyncTasksDropped.Inc()
		return false
	}

	select {
	case p.queue <- task{name: name, fn: fn}:
		return true
	default:
		zap.L().Warn("Worker pool: queue full, task dropped", zap.String("task", name))
		metrics.AsyncTasksDropped.Inc()
		return false
	}
}

// Stop closes the queue and waits for queued tasks to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Inline runs tasks synchronously on the caller's goroutine
type Inline struct{}

// Submit runs fn immediately
func (Inline) Submit(name string, fn func(ctx context.Context)) bool {
	fn(context.Background())
	return true
}
