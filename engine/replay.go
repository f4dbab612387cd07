package engine

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/internal/raster"
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

// replay is the execution state of one running task.
type replay struct {
	e     *Engine
	rt    *RenderTask
	state *gfx.RenderState

	dst, src       *surface.Buffer
	dstPal, srcPal *pixel.Palette

	// Active buffer locks, taken on the first primitive that needs them.
	hw      bool
	dstLock *surface.Lock
	srcLock *surface.Lock
}

// execute replays rt against a fresh render state.
func (e *Engine) execute(_ context.Context, rt *RenderTask) (err error) {
	e.run.Add(1)
	r := &replay{e: e, rt: rt, state: gfx.NewRenderState()}
	defer func() {
		if uerr := r.unlock(); err == nil {
			err = uerr
		}
	}()

	for _, chunk := range rt.chunks {
		for _, cmd := range chunk {
			if err := r.exec(cmd); err != nil {
				if errors.Is(err, ErrUnknownCommand) {
					slogger().Error("broken command stream", rt.task.LogAttr(), "err", err)
				}
				return err
			}
		}
	}
	slogger().Debug("render task done", rt.task.LogAttr(), "commands", rt.log.count)
	return nil
}

func (r *replay) exec(cmd Command) error {
	s := r.state
	switch c := cmd.(type) {
	case SetDestination:
		if err := r.unlock(); err != nil {
			return err
		}
		r.dst, r.dstPal = c.Buffer, nil
		s.Destination = c.Buffer.Surface()
		s.Modified |= gfx.ModDestination
	case SetSource:
		if err := r.unlockSource(); err != nil {
			return err
		}
		r.src, r.srcPal = c.Buffer, nil
		s.Source = c.Buffer.Surface()
		s.Modified |= gfx.ModSource
	case SetDestinationPalette:
		r.dstPal = &pixel.Palette{Entries: c.Entries}
	case SetSourcePalette:
		r.srcPal = &pixel.Palette{Entries: c.Entries}
	case SetClip:
		s.SetClip(c.Rect)
	case SetColor:
		s.SetColor(c.Color)
	case SetDrawingFlags:
		s.SetDrawingFlags(c.Flags)
	case SetBlittingFlags:
		s.SetBlittingFlags(c.Flags)
	case SetSrcBlend:
		s.SetSrcBlend(c.Func)
	case SetDstBlend:
		s.SetDstBlend(c.Func)
	case SetSrcColorKey:
		s.SetSrcColorKey(c.Key)
	case FillRectangles:
		return r.fillRectangles(c.Rects)
	case DrawLines:
		return r.drawLines(c.Lines)
	case Blit:
		return r.blit(c.Ops)
	case StretchBlit:
		return r.stretchBlit(c.Ops)
	case TextureTriangles:
		return r.textureTriangles(c.Triangles)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return nil
}

// hardware prepares the driver for op and reports whether it accepted.
func (r *replay) hardware(op gfx.Accel) bool {
	d := r.e.cfg.Driver
	if d == nil {
		return false
	}
	r.state.Accel &^= op
	d.CheckState(r.state, op)
	if r.state.Accel&op == 0 {
		return false
	}
	if err := r.lock(true, op.IsBlitting()); err != nil {
		slogger().Debug("hardware lock refused", r.rt.task.LogAttr(), "op", op, "err", err)
		return false
	}
	if err := d.SetState(r.state, op); err != nil {
		slogger().Warn("driver refused state", r.rt.task.LogAttr(), "op", op, "err", err)
		return false
	}
	r.state.Clean(gfx.ModAll)
	return true
}

// software locks the buffers for CPU rendering and returns their images.
func (r *replay) software(blit bool) (dst, src *pixel.Image, err error) {
	if err := r.lock(false, blit); err != nil {
		return nil, nil, err
	}
	dst = r.dstLock.Image()
	if r.dstPal != nil {
		dst.Palette = r.dstPal
	}
	if blit {
		src = r.srcLock.Image()
		if r.srcPal != nil {
			src.Palette = r.srcPal
		}
	}
	return dst, src, nil
}

func (r *replay) lock(hw, blit bool) error {
	if r.dstLock != nil && r.hw != hw {
		if err := r.unlock(); err != nil {
			return err
		}
	}
	if r.dst == nil {
		return ErrNoDestination
	}
	if r.dstLock == nil {
		l, err := lockBuffer(r.dst, hw, pool.AccessRead|pool.AccessWrite)
		if err != nil {
			return err
		}
		r.dstLock, r.hw = l, hw
	}
	if blit && r.srcLock == nil {
		switch {
		case r.src == nil:
			return gfx.ErrUnsupported
		case r.src == r.dst:
			r.srcLock = r.dstLock
		default:
			l, err := lockBuffer(r.src, hw, pool.AccessRead)
			if err != nil {
				return err
			}
			r.srcLock = l
		}
	}
	r.state.Dst, r.state.Src = r.dstLock, r.srcLock
	return nil
}

func lockBuffer(b *surface.Buffer, hw bool, access pool.Access) (*surface.Lock, error) {
	m := b.Surface().Manager()
	if hw {
		return m.HardwareLockBuffer(b, access)
	}
	return m.SoftwareLockBuffer(b, access)
}

func (r *replay) unlockSource() error {
	l := r.srcLock
	r.srcLock, r.state.Src = nil, nil
	if l == nil || l == r.dstLock {
		return nil
	}
	return l.Buffer.Surface().Manager().Unlock(l)
}

func (r *replay) unlock() error {
	err := r.unlockSource()
	if l := r.dstLock; l != nil {
		r.dstLock, r.state.Dst = nil, nil
		if uerr := l.Buffer.Surface().Manager().Unlock(l); err == nil {
			err = uerr
		}
	}
	return err
}

// sameBuffer reports whether a blit reads the buffer it writes.
func (r *replay) sameBuffer() bool {
	return r.src == r.dst
}

func (r *replay) fillRectangles(rects []image.Rectangle) error {
	if r.hardware(gfx.AccelFillRectangle) {
		d := r.e.cfg.Driver
		var rest []image.Rectangle
		for _, rect := range rects {
			if !d.FillRectangle(rect) {
				rest = append(rest, rect)
			}
		}
		d.EmitCommands()
		if rects = rest; len(rects) == 0 {
			return nil
		}
	}
	dst, _, err := r.software(false)
	if err != nil {
		return err
	}
	for _, rect := range rects {
		raster.FillRectangle(dst, rect, r.state)
	}
	return nil
}

func (r *replay) drawLines(lines []gfx.Line) error {
	if r.hardware(gfx.AccelDrawLine) {
		d := r.e.cfg.Driver
		var rest []gfx.Line
		for _, l := range lines {
			if !d.DrawLine(l) {
				rest = append(rest, l)
			}
		}
		d.EmitCommands()
		if lines = rest; len(lines) == 0 {
			return nil
		}
	}
	dst, _, err := r.software(false)
	if err != nil {
		return err
	}
	for _, l := range lines {
		raster.DrawLine(dst, l, r.state)
	}
	return nil
}

func (r *replay) blit(ops []BlitOp) error {
	if r.hardware(gfx.AccelBlit) {
		d := r.e.cfg.Driver
		var rest []BlitOp
		for _, op := range ops {
			if !d.Blit(op.Src, op.Dst) {
				rest = append(rest, op)
			}
		}
		d.EmitCommands()
		if ops = rest; len(ops) == 0 {
			return nil
		}
	}
	dst, src, err := r.software(true)
	if err != nil {
		return err
	}
	for _, op := range ops {
		from := src
		if r.sameBuffer() {
			from = raster.Snapshot(src, op.Src)
		}
		raster.Blit(dst, from, op.Src, op.Dst, r.state)
		if from != src {
			raster.Release(from)
		}
	}
	return nil
}

func (r *replay) stretchBlit(ops []StretchOp) error {
	if r.hardware(gfx.AccelStretchBlit) {
		d := r.e.cfg.Driver
		var rest []StretchOp
		for _, op := range ops {
			if !d.StretchBlit(op.Src, op.Dst) {
				rest = append(rest, op)
			}
		}
		d.EmitCommands()
		if ops = rest; len(ops) == 0 {
			return nil
		}
	}
	dst, src, err := r.software(true)
	if err != nil {
		return err
	}
	for _, op := range ops {
		from := src
		if r.sameBuffer() {
			from = raster.Snapshot(src, op.Src)
		}
		raster.StretchBlit(dst, from, op.Src, op.Dst, r.state)
		if from != src {
			raster.Release(from)
		}
	}
	return nil
}

func (r *replay) textureTriangles(tris []gfx.Triangle) error {
	if r.hardware(gfx.AccelTextureTriangles) {
		d := r.e.cfg.Driver
		ok := d.TextureTriangles(tris)
		d.EmitCommands()
		if ok {
			return nil
		}
	}
	dst, src, err := r.software(true)
	if err != nil {
		return err
	}
	if r.sameBuffer() {
		src = raster.Snapshot(src, src.Rect)
		defer raster.Release(src)
	}
	for _, t := range tris {
		raster.TextureTriangle(dst, src, t, r.state.Clip, r.state)
	}
	return nil
}
