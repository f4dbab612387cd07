// Package parallel provides the worker pool that executes queued tasks.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("parallel: pool closed")

// MaxWorkers is the largest number of workers a pool runs.
const MaxWorkers = 8

// WorkerPool runs work items on a fixed set of goroutines.
//
// All workers pull from one shared FIFO. A worker runs an item to
// completion before it pulls the next one, so items start in submission
// order.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// queue is the shared FIFO.
	queue chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	// active counts items currently executing.
	active atomic.Int64

	// submitMu orders Submit against Close.
	submitMu sync.RWMutex
}

// NewWorkerPool creates a pool with the given number of workers, clamped
// to 1..MaxWorkers. If workers is 0 or negative, GOMAXPROCS is used.
// queueSize bounds the FIFO; 0 selects 4 items per worker.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, MaxWorkers)
	if queueSize <= 0 {
		queueSize = max(workers*4, 8)
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// worker is the pull-and-run loop of one goroutine.
func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case work := <-p.queue:
			p.run(work)
		case <-p.done:
			p.drainQueue()
			return
		}
	}
}

func (p *WorkerPool) run(work func()) {
	if work == nil {
		return
	}
	p.active.Add(1)
	defer p.active.Add(-1)
	work()
}

// drainQueue executes all remaining work.
func (p *WorkerPool) drainQueue() {
	for {
		select {
		case work := <-p.queue:
			p.run(work)
		default:
			return
		}
	}
}

// Submit queues fn, blocking while the FIFO is full.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	if fn == nil {
		return nil
	}
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if !p.running.Load() {
		return ErrClosed
	}
	select {
	case p.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteAll runs every item and waits for all of them to complete.
func (p *WorkerPool) ExecuteAll(ctx context.Context, work []func()) error {
	var wg sync.WaitGroup
	for _, fn := range work {
		wg.Add(1)
		if err := p.Submit(ctx, func() {
			defer wg.Done()
			fn()
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// Close stops accepting work, runs what is queued and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.submitMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.submitMu.Unlock()
		return
	}
	close(p.done)
	p.submitMu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the number of items waiting in the FIFO.
func (p *WorkerPool) QueuedWork() int {
	return len(p.queue)
}

// ActiveWork returns the number of items currently executing.
func (p *WorkerPool) ActiveWork() int {
	return int(p.active.Load())
}
