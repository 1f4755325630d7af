package crawler

import (
	"context"
	"errors"
	"sync"
)

type job func(ctx context.Context)

var errPoolClosed = errors.New("worker pool closed")

// WorkerPool runs page jobs on a fixed number of goroutines with a bounded
// queue. Every submitted job runs exactly once; after cancellation jobs still
// run but see a done context.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool with the given concurrency and queue size.
func NewWorkerPool(parent context.Context, concurrency, queueSize int) (*WorkerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &WorkerPool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queueSize),
	}
	for i := 0; i < concurrency; i++ {
		pool.wg.Add(1)
		go func() {
			defer pool.wg.Done()
			for fn := range pool.jobs {
				fn(pool.ctx)
			}
		}()
	}
	return pool, nil
}

// Submit schedules a job, blocking while the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, fn job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- fn:
		return nil
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		p.cancel()
	})
}
