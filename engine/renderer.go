package engine

import (
	"context"
	"errors"
	"image"

	"github.com/deniskropp/DirectFB-sub015/gfx"
)

// Renderer records drawing calls of one producer. It binds render tasks
// on demand and continues in a new task when the current one is full, so
// a task always ends at a primitive boundary.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	e     *Engine
	state *gfx.RenderState
	rt    *RenderTask
	last  *RenderTask

	flushed int
}

// NewRenderer returns a renderer with a default render state.
func (e *Engine) NewRenderer() *Renderer {
	return &Renderer{e: e, state: gfx.NewRenderState()}
}

// State returns the render state the next calls use. Change it with its
// setters so the changes are recorded.
func (r *Renderer) State() *gfx.RenderState { return r.state }

// Current returns the task being recorded, or nil.
func (r *Renderer) Current() *RenderTask { return r.rt }

// Last returns the most recently flushed task, or nil.
func (r *Renderer) Last() *RenderTask { return r.last }

// Flushed returns the number of tasks flushed by r.
func (r *Renderer) Flushed() int { return r.flushed }

// prepare returns a task with room for one more primitive and op's state
// recorded into it.
func (r *Renderer) prepare(ctx context.Context, op gfx.Accel) (*RenderTask, error) {
	if err := r.e.CheckState(r.state, op); err != nil {
		return nil, err
	}
	if r.rt != nil && r.e.Check(r.rt) != nil {
		if err := r.Flush(); err != nil {
			return nil, err
		}
	}
	if r.rt == nil {
		rt, err := r.e.Bind(ctx)
		if err != nil {
			return nil, err
		}
		r.rt = rt
		r.state.Modified = gfx.ModAll
	}
	if err := r.e.SetState(r.rt, r.state, op); err != nil {
		return nil, err
	}
	return r.rt, nil
}

// record runs one primitive, retrying once in a new task when recording
// the state filled the current one.
func (r *Renderer) record(ctx context.Context, op gfx.Accel, fn func(*RenderTask) (int, error)) error {
	for retried := false; ; retried = true {
		rt, err := r.prepare(ctx, op)
		if err != nil {
			return err
		}
		_, err = fn(rt)
		if !errors.Is(err, ErrLimitExceeded) || retried {
			return err
		}
		if err := r.Flush(); err != nil {
			return err
		}
	}
}

// FillRectangles fills rects with the state color.
func (r *Renderer) FillRectangles(ctx context.Context, rects ...image.Rectangle) error {
	return r.record(ctx, gfx.AccelFillRectangle, func(rt *RenderTask) (int, error) {
		return r.e.FillRectangles(rt, rects...)
	})
}

// DrawLines draws lines with the state color.
func (r *Renderer) DrawLines(ctx context.Context, lines ...gfx.Line) error {
	return r.record(ctx, gfx.AccelDrawLine, func(rt *RenderTask) (int, error) {
		return r.e.DrawLines(rt, lines...)
	})
}

// Blit copies rectangles of the state source.
func (r *Renderer) Blit(ctx context.Context, ops ...BlitOp) error {
	return r.record(ctx, gfx.AccelBlit, func(rt *RenderTask) (int, error) {
		return r.e.Blit(rt, ops...)
	})
}

// StretchBlit scales rectangles of the state source.
func (r *Renderer) StretchBlit(ctx context.Context, ops ...StretchOp) error {
	return r.record(ctx, gfx.AccelStretchBlit, func(rt *RenderTask) (int, error) {
		return r.e.StretchBlit(rt, ops...)
	})
}

// TextureTriangles maps the state source onto the triangles formed by
// vertices.
func (r *Renderer) TextureTriangles(ctx context.Context, vertices []gfx.Vertex, f gfx.Formation) error {
	tris, err := gfx.Triangles(vertices, f)
	if err != nil {
		return err
	}
	return r.record(ctx, gfx.AccelTextureTriangles, func(rt *RenderTask) (int, error) {
		return r.e.TextureTriangles(rt, tris...)
	})
}

// Flush pushes the current task, if any.
func (r *Renderer) Flush() error {
	rt := r.rt
	if rt == nil {
		return nil
	}
	r.rt = nil
	r.last = rt
	r.flushed++
	return r.e.Flush(rt)
}

// Sync flushes and waits until every task of the engine is done.
func (r *Renderer) Sync(ctx context.Context) error {
	if err := r.Flush(); err != nil {
		return err
	}
	return r.e.Sync(ctx)
}
