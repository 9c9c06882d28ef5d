// Package workerpool is the shared substrate for every background activity:
// periodic announcements, accept loops, per-connection handlers and delayed
// cancellation all run as Tasks of one Pool.
package workerpool

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"tarun-kavipurapu/p2p-send/pkg/logger"
)

// Task is a handle to one submitted unit of work.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel requests the task to stop. Blocking work observes it through its context;
// Cancel does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has returned (or will never run).
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has returned.
func (t *Task) Wait() {
	<-t.done
}

// Pool bounds concurrently running work to a fixed number of worker slots.
// Resident loops started with Go do not hold a slot.
type Pool struct {
	clock  clock.Clock
	sem    *semaphore.Weighted
	size   int
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	running atomic.Int64
}

// New creates a pool with size worker slots; size <= 0 uses the host parallelism.
// A nil clock uses the wall clock.
func New(size int, clk clock.Clock) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		clock:  clk,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Size() int          { return p.size }
func (p *Pool) Clock() clock.Clock { return p.clock }

// Running is the number of tasks currently holding a worker slot.
func (p *Pool) Running() int64 {
	return p.running.Load()
}

// start registers a task and launches body on its own goroutine.
// After Close the returned task is already done, body never runs and
// release, if set, is called instead.
func (p *Pool) start(body func(ctx context.Context), release func()) *Task {
	ctx, cancel := context.WithCancel(p.ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		close(t.done)
		if release != nil {
			release()
		}
		return t
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(t.done)
		defer cancel()
		body(ctx)
	}()
	return t
}

// runSlot waits for a free worker slot and runs fn in it.
func (p *Pool) runSlot(ctx context.Context, fn func(ctx context.Context)) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)
	p.running.Add(1)
	defer p.running.Add(-1)
	p.protect(ctx, fn)
}

// protect keeps a panicking task from taking down the process.
func (p *Pool) protect(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Sugar.Errorf("[WorkerPool] task panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn(ctx)
}

// Submit runs fn once, as soon as a worker slot is free.
func (p *Pool) Submit(fn func(ctx context.Context)) *Task {
	return p.start(func(ctx context.Context) {
		p.runSlot(ctx, fn)
	}, nil)
}

// Go runs a long lived loop (accept loop, multicast receive loop) outside the
// worker slots so it can never starve the work it dispatches.
func (p *Pool) Go(fn func(ctx context.Context)) *Task {
	return p.start(func(ctx context.Context) {
		p.protect(ctx, fn)
	}, nil)
}

// Schedule runs fn once after delay unless canceled first.
func (p *Pool) Schedule(delay time.Duration, fn func(ctx context.Context)) *Task {
	timer := p.clock.Timer(delay)
	return p.start(func(ctx context.Context) {
		select {
		case <-timer.C:
			p.runSlot(ctx, fn)
		case <-ctx.Done():
			timer.Stop()
		}
	}, func() { timer.Stop() })
}

// Every runs fn immediately and then at a fixed rate of interval until canceled.
// Ticks that arrive while fn is still running are dropped.
func (p *Pool) Every(interval time.Duration, fn func(ctx context.Context)) *Task {
	ticker := p.clock.Ticker(interval)
	return p.start(func(ctx context.Context) {
		defer ticker.Stop()
		p.runSlot(ctx, fn)
		for {
			select {
			case <-ticker.C:
				p.runSlot(ctx, fn)
			case <-ctx.Done():
				return
			}
		}
	}, ticker.Stop)
}

// Close cancels every task and waits for all of them to return.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
