// Package dispatch runs background jobs under a process-wide concurrency bound.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("dispatcher closed")

// Job is one unit of background work. The context is cancelled only when the
// dispatcher is forced down during shutdown.
type Job func(ctx context.Context)

// Observer receives queue gauges whenever they change.
type Observer interface {
	ObserveDispatch(queued, running int64)
}

// Dispatcher is a bounded work queue: at most limit jobs run at once and the
// rest wait for a free slot.
type Dispatcher struct {
	limit    int64
	sem      *semaphore.Weighted
	wg       *conc.WaitGroup
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	queued  atomic.Int64
	running atomic.Int64
}

func New(limit int, observer Observer) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		limit:    int64(limit),
		sem:      semaphore.NewWeighted(int64(limit)),
		wg:       conc.NewWaitGroup(),
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Limit returns the configured concurrency bound.
func (d *Dispatcher) Limit() int {
	return int(d.limit)
}

// Queued returns the number of jobs waiting for a slot.
func (d *Dispatcher) Queued() int64 {
	return d.queued.Load()
}

// Running returns the number of jobs currently executing.
func (d *Dispatcher) Running() int64 {
	return d.running.Load()
}

// Submit enqueues job without blocking the caller.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.queued.Add(1)
	d.observe()
	d.wg.Go(func() {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			// Forced shutdown while queued: run with the cancelled context so the
			// job can still report an outcome.
			d.queued.Add(-1)
			d.observe()
			job(d.ctx)
			return
		}
		d.queued.Add(-1)
		d.running.Add(1)
		d.observe()
		defer func() {
			d.running.Add(-1)
			d.sem.Release(1)
			d.observe()
		}()
		job(d.ctx)
	})
	return nil
}

// Close stops accepting jobs and waits for queued and running ones. When ctx
// expires first the remaining jobs see their context cancelled and Close
// returns ctx.Err() after they unwind.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := d.wg.WaitAndRecover(); r != nil {
			slog.Error("dispatch job panicked", "panic", r.Value, "stack", string(r.Stack))
		}
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) observe() {
	if d.observer == nil {
		return
	}
	d.observer.ObserveDispatch(d.queued.Load(), d.running.Load())
}
