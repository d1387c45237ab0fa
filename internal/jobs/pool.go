// Package jobs runs background work on a bounded in-process pool.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"research-backend/internal/shared/telemetry"
)

// Pool executes submitted jobs on at most size goroutines. Submit returns
// immediately; callers observe progress by polling whatever state the job
// mutates. Jobs are recover-wrapped so a panic never crosses the job
// boundary.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPool constructs a pool with the given concurrency.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit schedules fn on the pool. The job runs with a background context so
// it outlives the request that submitted it. Returns false if the pool is
// shutting down.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("job.panic", map[string]any{
					"job":   name,
					"error": fmt.Sprintf("%v", rec),
				})
			}
		}()
		fn(context.Background())
	}()
	return true
}

// Shutdown stops accepting jobs and waits for running ones up to timeout.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("jobs: shutdown timed out after %s", timeout)
	}
}
