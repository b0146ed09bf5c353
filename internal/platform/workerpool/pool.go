// Package workerpool runs deferred background work on a bounded ants pool.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolClosed is returned when work is submitted after Shutdown
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of background work. It receives the context it was submitted with.
type Task func(ctx context.Context) error

// Pool bounds how many tasks run at once and tracks in-flight work so
// Shutdown can drain it
type Pool struct {
	pool     *ants.Pool
	logger   *slog.Logger
	inFlight sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a pool with size workers. A panicking task is logged and the
// worker keeps serving.
func New(size int, logger *slog.Logger) (*Pool, error) {
	p := &Pool{logger: logger}

	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(r any) {
		logger.Error("Worker pool task panicked", "panic", r)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Submit schedules task without waiting for it. Errors are logged under name.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	return p.submit(ctx, name, task, nil)
}

// SubmitAndWait schedules task and blocks until it finishes or ctx is done.
// The task keeps running if ctx ends first.
func (p *Pool) SubmitAndWait(ctx context.Context, name string, task Task) error {
	resultChan := make(chan error, 1)
	if err := p.submit(ctx, name, task, resultChan); err != nil {
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) submit(ctx context.Context, name string, task Task, resultChan chan<- error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.inFlight.Add(1)
	err := p.pool.Submit(func() {
		defer p.inFlight.Done()

		start := time.Now()
		err := task(ctx)
		if err != nil {
			p.logger.Error("Background task failed", "task", name, "duration", time.Since(start), "error", err)
		} else {
			p.logger.Debug("Background task completed", "task", name, "duration", time.Since(start))
		}

		if resultChan != nil {
			resultChan <- err
		}
	})
	if err != nil {
		p.inFlight.Done()
		p.logger.Error("Failed to submit task to worker pool", "task", name, "error", err)
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("failed to submit %s: %w", name, err)
	}
	return nil
}

// Shutdown stops accepting work and waits up to timeout for running tasks
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("Shutting down worker pool", "running_workers", p.pool.Running())

	drained := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-time.After(timeout):
		err = fmt.Errorf("worker pool did not drain within %s", timeout)
	}

	p.pool.Release()
	return err
}

// Running returns the number of running workers in the pool
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Capacity returns the capacity of the worker pool
func (p *Pool) Capacity() int {
	return p.pool.Cap()
}
