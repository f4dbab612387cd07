package engine

import (
	"context"
	"image"

	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
	"github.com/deniskropp/DirectFB-sub015/task"
)

// RenderTask is a recorded command stream and its scheduling weight.
//
// A RenderTask is filled by one producer at a time; the engine does not
// lock it while recording. Once pushed, its chunks are read only by the
// worker that runs it.
type RenderTask struct {
	engine *Engine
	task   *task.Task

	log    commandLog
	chunks []Chunk
	weight int64

	// Shifts applied to the weight of drawing and blitting primitives.
	drawShift uint
	blitShift uint

	// Recorded state the primitives are clipped and charged against.
	dst  *surface.Buffer
	src  *surface.Buffer
	clip image.Rectangle

	accessed map[*surface.Buffer]pool.Access

	// queued is set while the task counts against the admission limit.
	// Guarded by the engine lock.
	queued bool
}

// ID returns the trace id of the task.
func (rt *RenderTask) ID() string { return rt.task.ID() }

// Task returns the underlying task.
func (rt *RenderTask) Task() *task.Task { return rt.task }

// Weight returns the accumulated weight.
func (rt *RenderTask) Weight() int64 { return rt.weight }

// Len returns the encoded length of the recorded commands in bytes.
func (rt *RenderTask) Len() int { return rt.log.length }

// NumCommands returns the number of recorded commands.
func (rt *RenderTask) NumCommands() int { return rt.log.count }

// Chunks returns the chunks handed to the worker. It is empty until the
// task is pushed.
func (rt *RenderTask) Chunks() []Chunk { return rt.chunks }

// Commands returns every command of a pushed task in order.
func (rt *RenderTask) Commands() []Command {
	var cmds []Command
	for _, c := range rt.chunks {
		cmds = append(cmds, c...)
	}
	return cmds
}

// Wait blocks until the task is done and returns its result.
func (rt *RenderTask) Wait(ctx context.Context) error { return rt.task.Wait(ctx) }

func (rt *RenderTask) append(c Command) {
	rt.log.append(c)
}

// bufferAccess is one buffer a task will access.
type bufferAccess struct {
	buffer *surface.Buffer
	access pool.Access
}

// access adds the storage of every buffer to the access list, once per
// access mode. Nothing is added unless the storage of all buffers could
// be referenced.
func (rt *RenderTask) access(reqs ...bufferAccess) error {
	held := make([][]*pool.Handle, len(reqs))
	defer func() {
		for _, hs := range held {
			for _, h := range hs {
				h.Release()
			}
		}
	}()
	for i, r := range reqs {
		if prev, ok := rt.accessed[r.buffer]; ok && prev.Has(r.access) {
			continue
		}
		hs, err := r.buffer.Surface().Manager().BufferHandles(r.buffer)
		if err != nil {
			return err
		}
		held[i] = hs
	}
	for i, r := range reqs {
		for _, h := range held[i] {
			if err := rt.task.AddAccess(h, r.access); err != nil {
				return err
			}
		}
		rt.accessed[r.buffer] |= r.access
	}
	return nil
}

// runner adapts a RenderTask to the task hooks.
type runner struct {
	rt *RenderTask
}

func (r runner) Push(*task.Task) error {
	r.rt.chunks = r.rt.log.seal()
	return r.rt.engine.submit(r.rt)
}

func (r runner) Run(ctx context.Context, _ *task.Task) error {
	return r.rt.engine.execute(ctx, r.rt)
}

func (r runner) Finalise(t *task.Task) {
	r.rt.engine.finished(r.rt, t.Err())
}
