// Package pool implements the bounded worker pool that runs every backing-store query, discovery step and cache
// population. It is kept apart from the goroutines net/http uses to accept and dispatch requests so that slow I/O
// only ever queues behind other I/O.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("worker pool is closed")

var inflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "chainquery_pool_inflight",
	Help: "Tasks currently executing on a worker pool.",
}, []string{"pool"})

// Pool bounds the number of tasks executing at once.
type Pool struct {
	name   string
	size   int
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against wg.Add
	closed bool
	active atomic.Int64
}

// New returns a pool named name running at most size tasks concurrently. A size below 1 is treated as 1.
func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}

	return &Pool{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Active returns the number of tasks executing right now.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close stops accepting new tasks and waits for queued and running ones to finish or for ctx to be done.
func (p *Pool) Close(ctx context.Context) error {
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
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is the pending result of a function submitted to a Pool.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task completes or ctx is done. Abandoning the wait does not cancel the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Done is closed when the task has completed.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Submit schedules fn on p and returns immediately. fn runs once a worker slot is free; if ctx is done before that,
// the task completes with ctx's error without running fn.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		t.err = ErrClosed
		close(t.done)

		return t
	}

	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer close(t.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			t.err = err

			return
		}
		defer p.sem.Release(1)

		p.active.Add(1)
		inflight.WithLabelValues(p.name).Inc()

		defer func() {
			p.active.Add(-1)
			inflight.WithLabelValues(p.name).Dec()
		}()

		t.val, t.err = fn(ctx)
	}()

	return t
}

// Run submits fn to p and waits for its result.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, p, fn).Wait(ctx)
}
