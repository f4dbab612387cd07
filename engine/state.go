package engine

import (
	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

// CheckState sets op in s.Accel when the engine can execute op with s and
// returns gfx.ErrUnsupported otherwise. Blending into an indexed
// destination and blits without a source are not supported.
func (e *Engine) CheckState(s *gfx.RenderState, op gfx.Accel) error {
	s.Accel &^= op
	if s.Destination == nil || s.Destination.Destroyed() {
		return ErrNoDestination
	}
	indexed := s.Destination.Format().IsIndexed()
	if op.IsDrawing() && indexed && s.DrawingFlags&gfx.DrawBlend != 0 {
		return gfx.ErrUnsupported
	}
	if op.IsBlitting() {
		if s.Source == nil || s.Source.Destroyed() {
			return gfx.ErrUnsupported
		}
		if indexed && s.Blending() {
			return gfx.ErrUnsupported
		}
	}
	s.Accel |= op
	return nil
}

// SetState records one command per dirty field of s into rt and clears
// the recorded bits. The source is only recorded for blitting operations,
// so ModSource stays set until the next blit.
//
// A destination or source that switched buffers since the last recording,
// e.g. after a flip, is recorded again even if s did not mark it. On error
// neither rt nor s is changed.
func (e *Engine) SetState(rt *RenderTask, s *gfx.RenderState, op gfx.Accel) error {
	if err := rt.recording(); err != nil {
		return err
	}
	if s.Destination == nil {
		return ErrNoDestination
	}

	dst := s.Destination.Buffer(s.To)
	dstChanged := s.Modified&gfx.ModDestination != 0 || dst != rt.dst
	var (
		src        *surface.Buffer
		srcChanged bool
	)
	if op.IsBlitting() {
		if s.Source == nil || s.Source.Destroyed() {
			return gfx.ErrUnsupported
		}
		src = s.Source.Buffer(s.From)
		srcChanged = s.Modified&gfx.ModSource != 0 || src != rt.src
	}

	var reqs []bufferAccess
	if dstChanged {
		reqs = append(reqs, bufferAccess{buffer: dst, access: pool.AccessRead | pool.AccessWrite})
	}
	if srcChanged {
		reqs = append(reqs, bufferAccess{buffer: src, access: pool.AccessRead})
	}
	if err := rt.access(reqs...); err != nil {
		return err
	}

	if dstChanged {
		rt.append(SetDestination{Buffer: dst})
		if s.Destination.Format().IsIndexed() {
			rt.append(SetDestinationPalette{Entries: s.Destination.Palette().Entries})
		}
		rt.dst = dst
	}
	if dstChanged || s.Modified&gfx.ModClip != 0 {
		rt.clip = s.Clip.Intersect(s.Destination.Bounds())
		rt.append(SetClip{Rect: rt.clip})
	}

	if s.Modified&gfx.ModColor != 0 {
		rt.append(SetColor{Color: s.Color})
	}
	if s.Modified&gfx.ModDrawingFlags != 0 {
		rt.append(SetDrawingFlags{Flags: s.DrawingFlags})
	}
	if s.Modified&gfx.ModBlittingFlags != 0 {
		rt.append(SetBlittingFlags{Flags: s.BlittingFlags})
	}
	if s.Modified&gfx.ModSrcBlend != 0 {
		rt.append(SetSrcBlend{Func: s.SrcBlend})
	}
	if s.Modified&gfx.ModDstBlend != 0 {
		rt.append(SetDstBlend{Func: s.DstBlend})
	}
	if s.Modified&gfx.ModSrcColorKey != 0 {
		rt.append(SetSrcColorKey{Key: s.SrcColorKey})
	}

	clean := gfx.ModAll &^ gfx.ModSource
	if op.IsBlitting() {
		if srcChanged {
			rt.append(SetSource{Buffer: src})
			if s.Source.Format().IsIndexed() {
				rt.append(SetSourcePalette{Entries: s.Source.Palette().Entries})
			}
			rt.src = src
		}
		clean = gfx.ModAll
	}

	w := e.cfg.Weights
	rt.drawShift = 0
	if s.DrawingFlags&gfx.DrawBlend != 0 {
		rt.drawShift = w.BlendShift
	}
	rt.blitShift = 0
	if s.Blending() {
		rt.blitShift += w.BlendShift
	}
	if s.Converting() {
		rt.blitShift += w.ConvertShift
	}

	s.Clean(clean)
	return nil
}
