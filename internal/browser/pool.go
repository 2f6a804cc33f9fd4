package browser

import (
	"context"
)

// WorkerPool bounds the number of concurrent browser sessions. Browsers
// are two orders of magnitude heavier than fast fetches; an unbounded
// fallback stampede would exhaust the host.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool admitting up to size concurrent sessions.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (p *WorkerPool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (p *WorkerPool) Release() {
	<-p.sem
}

// TryAcquire grabs a slot without blocking.
func (p *WorkerPool) TryAcquire() bool {
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// InUse returns the number of occupied slots.
func (p *WorkerPool) InUse() int {
	return len(p.sem)
}
