package engine

import (
	"image"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/task"
)

// recording fails unless rt still accepts commands.
func (rt *RenderTask) recording() error {
	if rt.task.Phase() != task.PhaseSetup {
		return task.ErrFrozen
	}
	return nil
}

// recordable fails when no primitive may be appended to rt.
func (e *Engine) recordable(rt *RenderTask, blit bool) error {
	if err := rt.recording(); err != nil {
		return err
	}
	if rt.dst == nil {
		return ErrNoDestination
	}
	if blit && rt.src == nil {
		return gfx.ErrUnsupported
	}
	return e.Check(rt)
}

// charge returns the weight of a primitive covering area pixels.
func (e *Engine) charge(area int, shift uint) int64 {
	w := e.cfg.Weights
	return w.Base + (int64(area)>>w.AreaShift)<<shift
}

// FillRectangles records rects clipped to the current clip and returns the
// number recorded. Nothing is recorded when every rectangle is clipped
// away.
func (e *Engine) FillRectangles(rt *RenderTask, rects ...image.Rectangle) (int, error) {
	if err := e.recordable(rt, false); err != nil {
		return 0, err
	}
	var (
		kept   []image.Rectangle
		weight int64
	)
	for _, r := range rects {
		if c, ok := gfx.ClipRect(rt.clip, r); ok {
			kept = append(kept, c)
			weight += e.charge(c.Dx()*c.Dy(), rt.drawShift)
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}
	rt.append(FillRectangles{Rects: kept})
	rt.weight += weight
	return len(kept), nil
}

// DrawLines records lines clipped to the current clip.
func (e *Engine) DrawLines(rt *RenderTask, lines ...gfx.Line) (int, error) {
	if err := e.recordable(rt, false); err != nil {
		return 0, err
	}
	var (
		kept   []gfx.Line
		weight int64
	)
	for _, l := range lines {
		if c, ok := gfx.ClipLine(rt.clip, l); ok {
			kept = append(kept, c)
			weight += e.charge(c.Length(), rt.drawShift)
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}
	rt.append(DrawLines{Lines: kept})
	rt.weight += weight
	return len(kept), nil
}

// Blit records blits from the current source. Source rectangles are
// limited to the source surface and destinations to the current clip.
func (e *Engine) Blit(rt *RenderTask, ops ...BlitOp) (int, error) {
	if err := e.recordable(rt, true); err != nil {
		return 0, err
	}
	srcBounds := rt.src.Surface().Bounds()
	var (
		kept   []BlitOp
		weight int64
	)
	for _, op := range ops {
		sr := op.Src.Intersect(srcBounds)
		if sr.Empty() {
			continue
		}
		dp := op.Dst.Add(sr.Min.Sub(op.Src.Min))
		sr, dp, ok := gfx.ClipBlit(rt.clip, sr, dp)
		if !ok {
			continue
		}
		kept = append(kept, BlitOp{Src: sr, Dst: dp})
		weight += e.charge(sr.Dx()*sr.Dy(), rt.blitShift)
	}
	if len(kept) == 0 {
		return 0, nil
	}
	rt.append(Blit{Ops: kept})
	rt.weight += weight
	return len(kept), nil
}

// StretchBlit records scaled blits from the current source.
func (e *Engine) StretchBlit(rt *RenderTask, ops ...StretchOp) (int, error) {
	if err := e.recordable(rt, true); err != nil {
		return 0, err
	}
	srcBounds := rt.src.Surface().Bounds()
	var (
		kept   []StretchOp
		weight int64
	)
	for _, op := range ops {
		sr, dr, ok := gfx.ClipStretchSource(srcBounds, op.Src, op.Dst)
		if !ok {
			continue
		}
		sr, dr, ok = gfx.ClipStretch(rt.clip, sr, dr)
		if !ok {
			continue
		}
		kept = append(kept, StretchOp{Src: sr, Dst: dr})
		weight += e.charge(dr.Dx()*dr.Dy(), rt.blitShift)
	}
	if len(kept) == 0 {
		return 0, nil
	}
	rt.append(StretchBlit{Ops: kept})
	rt.weight += weight
	return len(kept), nil
}

// TextureTriangles records textured triangles. Triangles outside the clip
// or without area are dropped; the rest are scissored when executed.
func (e *Engine) TextureTriangles(rt *RenderTask, tris ...gfx.Triangle) (int, error) {
	if err := e.recordable(rt, true); err != nil {
		return 0, err
	}
	var (
		kept   []gfx.Triangle
		weight int64
	)
	for _, t := range tris {
		if gfx.ClipTriangle(rt.clip, t) {
			kept = append(kept, t)
			weight += e.charge(t.Area(), rt.blitShift)
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}
	rt.append(TextureTriangles{Triangles: kept})
	rt.weight += weight
	return len(kept), nil
}
