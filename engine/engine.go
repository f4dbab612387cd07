// Package engine records drawing operations into command streams and
// executes them on a pool of worker goroutines.
//
// Producers bind a RenderTask, record state changes and primitives into it
// and push it. Recording clips all geometry against the recorded clip and
// charges every primitive a weight. Once a task reaches the configured
// weight or length, Check reports ErrLimitExceeded and the producer must
// continue in a new task. Pushed tasks are queued on one FIFO shared by
// all workers; a worker replays a task from start to end before taking the
// next one.
//
// Renderer wraps this protocol for producers that do not manage tasks
// themselves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/internal/parallel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
	"github.com/deniskropp/DirectFB-sub015/task"
)

// Engine errors.
var (
	// ErrLimitExceeded is returned when a render task reached its weight
	// or length limit.
	ErrLimitExceeded = errors.New("engine: render task limit exceeded")

	// ErrUnknownCommand is returned by replay for a command it cannot
	// decode.
	ErrUnknownCommand = errors.New("engine: unknown command")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine: closed")

	// ErrNoDestination is returned for primitives recorded without a
	// destination.
	ErrNoDestination = errors.New("engine: no destination")
)

func slogger() *slog.Logger { return fbcore.Logger() }

// Stats counts engine activity.
type Stats struct {
	Bound    uint64
	Pushed   uint64
	Run      uint64
	Failed   uint64
	Commands uint64
	Weight   int64

	// DriverSyncs counts completed accelerator syncs, SyncRetries the
	// interrupted waits that were retried.
	DriverSyncs uint64
	SyncRetries uint64

	// Queued is the number of pushed tasks that are not done.
	Queued int
}

// Engine executes render tasks.
type Engine struct {
	cfg     Config
	workers *parallel.WorkerPool

	mu     sync.Mutex
	queued int
	wake   chan struct{}
	closed bool

	bound    atomic.Uint64
	pushed   atomic.Uint64
	run      atomic.Uint64
	failed   atomic.Uint64
	commands atomic.Uint64
	weight   atomic.Int64

	driverSyncs atomic.Uint64
	syncRetries atomic.Uint64
}

// New creates an engine and starts its workers.
func New(opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	e := &Engine{
		cfg:     cfg,
		workers: parallel.NewWorkerPool(cfg.Cores, cfg.admission()),
		wake:    make(chan struct{}),
	}
	attrs := []any{"cores", cfg.Cores, "weight_max", cfg.WeightMax, "buffer_max", cfg.BufferMax}
	if cfg.Driver != nil {
		cfg.Driver.Reset()
		attrs = append(attrs, "driver", cfg.Driver.Info().Name)
	}
	slogger().Info("engine started", attrs...)
	return e
}

// Config returns the normalized configuration.
func (e *Engine) Config() Config { return e.cfg }

// broadcast wakes every goroutine waiting on the queue depth. It must be
// called with e.mu held.
func (e *Engine) broadcast() {
	close(e.wake)
	e.wake = make(chan struct{})
}

// waitQueue blocks until cond holds. It must be called with e.mu held and
// returns with e.mu held.
func (e *Engine) waitQueue(ctx context.Context, cond func() bool) error {
	for !cond() {
		wake := e.wake
		e.mu.Unlock()
		select {
		case <-wake:
			e.mu.Lock()
		case <-ctx.Done():
			e.mu.Lock()
			return ctx.Err()
		}
	}
	return nil
}

// Bind returns a new render task. It blocks while cores times the queue
// factor pushed tasks are waiting or running.
func (e *Engine) Bind(ctx context.Context) (*RenderTask, error) {
	limit := e.cfg.admission()
	e.mu.Lock()
	err := e.waitQueue(ctx, func() bool { return e.closed || e.queued < limit })
	closed := e.closed
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, ErrClosed
	}

	rt := &RenderTask{
		engine:   e,
		log:      commandLog{chunkSize: e.cfg.ChunkSize},
		accessed: make(map[*surface.Buffer]pool.Access),
	}
	rt.task = task.New("render", runner{rt: rt})
	if err := rt.task.Setup(); err != nil {
		return nil, err
	}
	e.bound.Add(1)
	return rt, nil
}

// Check returns ErrLimitExceeded once rt reached the weight or length
// limit. No primitive is recorded into such a task.
func (e *Engine) Check(rt *RenderTask) error {
	if rt.weight >= e.cfg.WeightMax || rt.log.length >= e.cfg.BufferMax {
		return ErrLimitExceeded
	}
	return nil
}

// Flush pushes rt to the worker FIFO. The task must not be recorded into
// afterwards.
func (e *Engine) Flush(rt *RenderTask) error {
	return rt.task.Push()
}

// Discard drops a task that was bound but will not be pushed and
// releases its references.
func (e *Engine) Discard(rt *RenderTask) {
	rt.task.Abort(nil)
}

// submit queues a pushed task. Failing tasks are finished by task.Push.
func (e *Engine) submit(rt *RenderTask) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.queued++
	rt.queued = true
	e.mu.Unlock()

	e.pushed.Add(1)
	e.commands.Add(uint64(rt.log.count))
	e.weight.Add(rt.weight)
	slogger().Debug("render task pushed", rt.task.LogAttr(),
		"weight", rt.weight, "length", rt.log.length, "chunks", len(rt.chunks))

	return e.workers.Submit(context.Background(), func() {
		_ = rt.task.Run(context.Background())
	})
}

// finished is called once per task that was submitted or failed to be.
func (e *Engine) finished(rt *RenderTask, err error) {
	if err != nil && !errors.Is(err, task.ErrAborted) {
		e.failed.Add(1)
	}
	e.mu.Lock()
	if rt.queued {
		rt.queued = false
		e.queued--
		e.broadcast()
	}
	e.mu.Unlock()
}

// Sync waits until every pushed task is done and the accelerator is idle.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	err := e.waitQueue(ctx, func() bool { return e.queued == 0 })
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.syncDriver(ctx)
}

// syncDriver waits for the accelerator, retrying interrupted waits. A
// failed wait is logged with the engine statistics and resets the driver.
func (e *Engine) syncDriver(ctx context.Context) error {
	d := e.cfg.Driver
	if d == nil {
		return nil
	}
	for {
		err := d.Sync(ctx)
		if err == nil {
			e.driverSyncs.Add(1)
			return nil
		}
		if errors.Is(err, gfx.ErrInterrupted) && ctx.Err() == nil {
			e.syncRetries.Add(1)
			continue
		}
		info := d.Info()
		slogger().Error("accelerator sync failed",
			"driver", info.Name, "type", info.Type, "stats", e.Stats(), "err", err)
		d.Reset()
		return fmt.Errorf("engine: accelerator sync: %w", err)
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	queued := e.queued
	e.mu.Unlock()
	return Stats{
		Bound:    e.bound.Load(),
		Pushed:   e.pushed.Load(),
		Run:      e.run.Load(),
		Failed:   e.failed.Load(),
		Commands: e.commands.Load(),
		Weight:   e.weight.Load(),

		DriverSyncs: e.driverSyncs.Load(),
		SyncRetries: e.syncRetries.Load(),

		Queued: queued,
	}
}

// Close runs every queued task and stops the workers.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.broadcast()
	e.mu.Unlock()

	e.workers.Close()
	slogger().Info("engine stopped", "run", e.run.Load(), "failed", e.failed.Load())
}
