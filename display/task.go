package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/internal/raster"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
	"github.com/deniskropp/DirectFB-sub015/task"
)

// Action is what a display task does when it runs.
type Action uint8

const (
	// ActionFlip tells the driver about buffers swapped in Generate.
	ActionFlip Action = iota

	// ActionCopy copies the update from back to front, then tells the
	// driver what changed.
	ActionCopy

	// ActionUpdate only tells the driver what changed.
	ActionUpdate
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionFlip:
		return "flip"
	case ActionCopy:
		return "copy"
	case ActionUpdate:
		return "update"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// eye is the part of a display task that concerns one surface.
type eye struct {
	// shown is a reference on the storage the layer scans out.
	shown *pool.Handle

	// Buffers copied from and to by ActionCopy.
	back, front *surface.Buffer

	update image.Rectangle

	// flip identifies the role swap done in Generate.
	flip uint64
}

// DisplayTask presents one flip or update of a region.
type DisplayTask struct {
	sched  *Scheduler
	region *Region
	task   *task.Task

	action Action
	flags  FlipFlags
	pts    time.Time

	left  eye
	right *eye

	// pending is set while the task counts against Scheduler.WaitIdle.
	// Guarded by the scheduler lock.
	pending bool
}

// ID returns the trace id.
func (dt *DisplayTask) ID() string { return dt.task.ID() }

// Task returns the underlying task.
func (dt *DisplayTask) Task() *task.Task { return dt.task }

// Region returns the region the task presents.
func (dt *DisplayTask) Region() *Region { return dt.region }

// Action returns what the task does when it runs.
func (dt *DisplayTask) Action() Action { return dt.action }

// PTS returns the requested presentation time.
func (dt *DisplayTask) PTS() time.Time { return dt.pts }

// Update returns the changed area in surface coordinates.
func (dt *DisplayTask) Update() Update {
	u := Update{Left: dt.left.update}
	if dt.right != nil {
		u.Right = dt.right.update
	}
	return u
}

// Wait blocks until the task is done and returns its result.
func (dt *DisplayTask) Wait(ctx context.Context) error { return dt.task.Wait(ctx) }

// Discard drops a held task without running it.
func (dt *DisplayTask) Discard() { dt.task.Abort(nil) }

func (dt *DisplayTask) eyes() []*eye {
	if dt.right != nil {
		return []*eye{&dt.left, dt.right}
	}
	return []*eye{&dt.left}
}

// release drops the references on the shown storage.
func (dt *DisplayTask) release() {
	for _, e := range dt.eyes() {
		if e.shown != nil {
			e.shown.Release()
			e.shown = nil
		}
	}
}

// run executes the task on a scheduler worker.
func (dt *DisplayTask) run(ctx context.Context) error {
	r := dt.region
	if dt.action == ActionCopy && dt.flags&FlipOnSync != 0 {
		if err := dt.waitVSync(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	err := dt.present()
	if err != nil && dt.action == ActionFlip {
		dt.revert()
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if dt.flags&FlipWait != 0 {
		return dt.waitVSync(ctx)
	}
	return nil
}

// present copies and notifies the driver. It must be called with the
// region lock held.
func (dt *DisplayTask) present() error {
	r := dt.region
	if dt.action == ActionCopy {
		for _, e := range dt.eyes() {
			if err := copyBack(e.back, e.front, e.update); err != nil {
				return err
			}
		}
		dt.sched.copies.Add(1)
	}
	if !r.realized || r.driver == nil {
		return nil
	}

	left, right, err := dt.lockShown()
	if err != nil {
		return err
	}
	defer dt.unlockShown(left, right)

	if dt.action == ActionFlip {
		dt.sched.flips.Add(1)
		return r.driver.FlipRegion(r, left, right, dt.flags)
	}
	dt.sched.updates.Add(1)
	return r.driver.UpdateRegion(r, left, right, dt.Update())
}

// revert undoes the role swap of a flip the layer did not show, so the
// previous front buffer stays the front buffer. Flips generated since are
// left alone. It must be called with the region lock held.
func (dt *DisplayTask) revert() {
	r := dt.region
	eyes := dt.eyes()
	reverted := false
	for i, sf := range r.surfaces() {
		if sf.Manager().Unflip(sf, eyes[i].flip) {
			reverted = true
			continue
		}
		logger().Warn("flip superseded, not reverted", dt.task.LogAttr(), "layer", r.layer, "surface", sf.ID())
	}
	if reverted {
		dt.sched.reverted.Add(1)
	}
}

func (dt *DisplayTask) lockShown() (left, right *pool.Lock, err error) {
	accessor := pool.Layer(dt.region.layer)
	lockOne := func(h *pool.Handle) (*pool.Lock, error) {
		return h.Allocation().Pool().Lock(h, accessor, pool.AccessRead)
	}
	left, err = lockOne(dt.left.shown)
	if err != nil {
		return nil, nil, err
	}
	if dt.right != nil {
		right, err = lockOne(dt.right.shown)
		if err != nil {
			_ = left.Allocation.Pool().Unlock(left)
			return nil, nil, err
		}
	}
	return left, right, nil
}

func (dt *DisplayTask) unlockShown(left, right *pool.Lock) {
	for _, l := range []*pool.Lock{left, right} {
		if l == nil {
			continue
		}
		if err := l.Allocation.Pool().Unlock(l); err != nil {
			logger().Warn("display unlock failed", dt.task.LogAttr(), "err", err)
		}
	}
}

// waitVSync waits for the next vertical sync without holding the region
// lock, retrying interrupted waits.
func (dt *DisplayTask) waitVSync(ctx context.Context) error {
	r := dt.region
	r.mu.Lock()
	d, suspended := r.driver, r.suspended
	r.mu.Unlock()
	if d == nil {
		return nil
	}
	if suspended {
		return ErrSuspended
	}

	ctx, cancel := context.WithTimeout(ctx, dt.sched.cfg.VSyncTimeout)
	defer cancel()
	for {
		err := d.WaitVSync(ctx)
		if err == nil {
			dt.sched.vsyncs.Add(1)
			return nil
		}
		if r.Suspended() {
			return ErrSuspended
		}
		if !errors.Is(err, ErrInterrupted) || ctx.Err() != nil {
			attrs := []any{dt.task.LogAttr(), "layer", r.layer, "err", err, "stats", dt.sched.Stats()}
			if lv, ok := d.(slog.LogValuer); ok {
				attrs = append(attrs, "driver", lv)
			}
			logger().Error("vsync wait failed", attrs...)
			return fmt.Errorf("display: layer %d: %w", r.layer, err)
		}
		dt.sched.retries.Add(1)
	}
}

// copyBack copies rect from back to front.
func copyBack(back, front *surface.Buffer, rect image.Rectangle) error {
	m := back.Surface().Manager()
	src, err := m.SoftwareLockBuffer(back, pool.AccessRead)
	if err != nil {
		return err
	}
	defer func() { _ = m.Unlock(src) }()
	dst, err := m.SoftwareLockBuffer(front, pool.AccessWrite)
	if err != nil {
		return err
	}
	defer func() { _ = m.Unlock(dst) }()

	raster.Blit(dst.Image(), src.Image(), rect, rect.Min, gfx.NewRenderState())
	return nil
}

// hooks adapts a DisplayTask to the task hooks.
type hooks struct {
	dt *DisplayTask
}

func (h hooks) Push(t *task.Task) error {
	dt := h.dt
	r := dt.region
	r.mu.Lock()
	if prev := r.current; prev != nil {
		prev.task.AddNotify(t)
	}
	r.current = dt
	r.mu.Unlock()
	return dt.sched.submit(dt)
}

func (h hooks) Run(ctx context.Context, _ *task.Task) error {
	return h.dt.run(ctx)
}

func (h hooks) Finalise(t *task.Task) {
	dt := h.dt
	dt.release()

	r := dt.region
	r.mu.Lock()
	if r.current == dt {
		r.current = nil
	}
	r.mu.Unlock()

	dt.sched.finished(dt, t.Err())
}
