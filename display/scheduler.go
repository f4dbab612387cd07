package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deniskropp/DirectFB-sub015/internal/parallel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
	"github.com/deniskropp/DirectFB-sub015/task"
)

// Scheduler defaults.
const (
	DefaultVSyncTimeout = 500 * time.Millisecond
	DefaultQueueSize    = 16
)

// Config configures a Scheduler.
type Config struct {
	// Workers is the number of goroutines running display tasks.
	// Zero means runtime.GOMAXPROCS(0), capped at parallel.MaxWorkers.
	Workers int

	// QueueSize bounds the number of pushed tasks waiting for a worker.
	QueueSize int

	// VSyncTimeout bounds every vertical sync wait.
	VSyncTimeout time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Config)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) SchedulerOption {
	return func(c *Config) { c.Workers = n }
}

// WithQueueSize sets the queue length of the worker pool.
func WithQueueSize(n int) SchedulerOption {
	return func(c *Config) { c.QueueSize = n }
}

// WithVSyncTimeout sets the timeout of vertical sync waits.
func WithVSyncTimeout(d time.Duration) SchedulerOption {
	return func(c *Config) { c.VSyncTimeout = d }
}

// Request is a flip or update of a region.
type Request struct {
	// Left and Right are the updated areas in logical layer coordinates.
	// Empty rectangles request a full frame update.
	Left  image.Rectangle
	Right image.Rectangle

	Flags FlipFlags

	// PTS is the requested presentation time. It is informational.
	PTS time.Time

	// Hold returns the task without pushing it. The caller must push it
	// with Scheduler.Push or drop it with DisplayTask.Discard.
	Hold bool
}

// Stats counts scheduler activity.
type Stats struct {
	Generated uint64
	Swaps     uint64
	Flips     uint64
	Copies    uint64
	Updates   uint64
	VSyncs    uint64
	Retries   uint64
	Failed    uint64

	// Reverted counts flips undone because the layer refused them.
	Reverted uint64

	// Pending is the number of pushed tasks that are not done.
	Pending int
}

// Scheduler generates display tasks and runs them on a worker pool.
type Scheduler struct {
	cfg     Config
	workers *parallel.WorkerPool

	mu      sync.Mutex
	pending int
	wake    chan struct{}
	closed  bool

	generated atomic.Uint64
	swaps     atomic.Uint64
	flips     atomic.Uint64
	copies    atomic.Uint64
	updates   atomic.Uint64
	vsyncs    atomic.Uint64
	retries   atomic.Uint64
	failed    atomic.Uint64
	reverted  atomic.Uint64
}

// NewScheduler creates a scheduler and starts its workers.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := Config{QueueSize: DefaultQueueSize, VSyncTimeout: DefaultVSyncTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	cfg.Workers = min(cfg.Workers, parallel.MaxWorkers)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.VSyncTimeout <= 0 {
		cfg.VSyncTimeout = DefaultVSyncTimeout
	}

	s := &Scheduler{
		cfg:     cfg,
		workers: parallel.NewWorkerPool(cfg.Workers, cfg.QueueSize),
		wake:    make(chan struct{}),
	}
	logger().Info("display scheduler started", "workers", cfg.Workers)
	return s
}

// Config returns the normalized configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Generate serves req on r.
//
// With the region lock and then the surface lock held it picks the
// action from the buffer mode: full frame updates of BackVideo and Triple
// regions swap the buffer roles, BackSystem regions and partial updates
// copy the update from back to front, and FrontOnly regions only report
// the update. It then takes a reference on the storage each eye shows
// and returns the task, pushed unless req.Hold is set.
func (s *Scheduler) Generate(ctx context.Context, r *Region, req Request) (*DisplayTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	dt, err := s.generate(r, req)
	if err != nil {
		return nil, err
	}
	s.generated.Add(1)
	logger().Debug("display task generated", dt.task.LogAttr(),
		"layer", r.layer, "action", dt.action, "update", dt.left.update,
		"present_mode", r.mode.PresentMode())

	if req.Hold {
		return dt, nil
	}
	if err := s.Push(dt); err != nil {
		return nil, err
	}
	return dt, nil
}

func (s *Scheduler) generate(r *Region, req Request) (*DisplayTask, error) {
	dt := &DisplayTask{sched: s, region: r, flags: req.Flags, pts: req.PTS}
	dt.task = task.New("display", hooks{dt: dt})
	if err := dt.task.Setup(); err != nil {
		return nil, err
	}
	if err := s.decide(dt, req); err != nil {
		dt.task.Abort(err)
		return nil, err
	}
	return dt, nil
}

// decide picks the action of dt, swaps buffer roles for flips and
// references the storage to show.
func (s *Scheduler) decide(dt *DisplayTask, req Request) error {
	r := dt.region
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeAlive()

	for _, sf := range r.surfaces() {
		if sf.Destroyed() {
			return fmt.Errorf("%w: layer %d", ErrSurfaceDestroyed, r.layer)
		}
	}

	w, h := r.left.Size()
	lw, lh := r.rotation.Size(w, h)
	logical := image.Rect(0, 0, lw, lh)
	full := req.Left.Empty() || req.Left.Intersect(logical) == logical
	dt.left.update = unrotate(r, req.Left, logical, w, h)
	if r.right != nil {
		dt.right = &eye{update: unrotate(r, req.Right, logical, w, h)}
		full = full && (req.Right.Empty() || req.Right.Intersect(logical) == logical)
	}

	switch {
	case r.mode == FrontOnly:
		dt.action = ActionUpdate
	case r.mode.swaps() && (full || req.Flags&FlipSwap != 0) && req.Flags&FlipBlit == 0:
		dt.action = ActionFlip
	default:
		dt.action = ActionCopy
	}

	if err := s.resolve(dt); err != nil {
		return err
	}
	if dt.action == ActionFlip {
		eyes := dt.eyes()
		for i, sf := range r.surfaces() {
			eyes[i].flip = sf.Manager().Flip(sf)
		}
		s.swaps.Add(1)
	}
	return nil
}

// unrotate maps a logical update to surface coordinates. Empty updates
// become the whole surface.
func unrotate(r *Region, rect, logical image.Rectangle, w, h int) image.Rectangle {
	if rect.Empty() {
		return image.Rect(0, 0, w, h)
	}
	return r.rotation.Unrotate(rect.Intersect(logical), w, h)
}

// resolve references the storage every eye shows once dt ran and adds the
// copied buffers to the access list. Flips show the current back buffer.
func (s *Scheduler) resolve(dt *DisplayTask) error {
	r := dt.region
	role := surface.RoleFront
	if dt.action == ActionFlip {
		role = surface.RoleBack
	}
	for i, e := range dt.eyes() {
		sf := r.surfaces()[i]
		if dt.action == ActionCopy {
			e.back, e.front = sf.Buffer(surface.RoleBack), sf.Buffer(surface.RoleFront)
			if err := addAccess(dt.task, e.back, pool.AccessRead); err != nil {
				return err
			}
			if err := addAccess(dt.task, e.front, pool.AccessWrite); err != nil {
				return err
			}
		}
		h, err := sf.Manager().DisplayHandle(sf, role, r.layer)
		if err != nil {
			return err
		}
		e.shown = h
	}
	return nil
}

func addAccess(t *task.Task, b *surface.Buffer, access pool.Access) error {
	hs, err := b.Surface().Manager().BufferHandles(b)
	if err != nil {
		return err
	}
	for _, h := range hs {
		err = t.AddAccess(h, access)
		h.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Push queues a held task. It runs after the task pushed before it on the
// same region.
func (s *Scheduler) Push(dt *DisplayTask) error {
	return dt.task.Push()
}

// submit queues a pushed task. Failing tasks are finished by task.Push.
func (s *Scheduler) submit(dt *DisplayTask) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending++
	dt.pending = true
	s.mu.Unlock()

	return s.workers.Submit(context.Background(), func() {
		_ = dt.task.Run(context.Background())
	})
}

func (s *Scheduler) finished(dt *DisplayTask, err error) {
	if err != nil && !errors.Is(err, task.ErrAborted) {
		s.failed.Add(1)
	}
	s.mu.Lock()
	if dt.pending {
		dt.pending = false
		s.pending--
		close(s.wake)
		s.wake = make(chan struct{})
	}
	s.mu.Unlock()
}

// WaitIdle blocks until every pushed task is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		wake := s.wake
		s.mu.Unlock()
		select {
		case <-wake:
			s.mu.Lock()
		case <-ctx.Done():
			s.mu.Lock()
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	return Stats{
		Generated: s.generated.Load(),
		Swaps:     s.swaps.Load(),
		Flips:     s.flips.Load(),
		Copies:    s.copies.Load(),
		Updates:   s.updates.Load(),
		VSyncs:    s.vsyncs.Load(),
		Retries:   s.retries.Load(),
		Failed:    s.failed.Load(),
		Reverted:  s.reverted.Load(),
		Pending:   pending,
	}
}

// Close runs every queued task and stops the workers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.workers.Close()
	logger().Info("display scheduler stopped", "generated", s.generated.Load(), "failed", s.failed.Load())
}
