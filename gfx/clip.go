package gfx

import "image"

// ClipRect intersects r with clip. It reports false when nothing is left.
// A rectangle already inside clip is returned unchanged.
func ClipRect(clip, r image.Rectangle) (image.Rectangle, bool) {
	r = r.Intersect(clip)
	return r, !r.Empty()
}

// Cohen-Sutherland outcodes.
const (
	outLeft = 1 << iota
	outRight
	outTop
	outBottom
)

func outcode(clip image.Rectangle, x, y int) int {
	code := 0
	switch {
	case x < clip.Min.X:
		code |= outLeft
	case x >= clip.Max.X:
		code |= outRight
	}
	switch {
	case y < clip.Min.Y:
		code |= outTop
	case y >= clip.Max.Y:
		code |= outBottom
	}
	return code
}

// ClipLine clips l against clip with the Cohen-Sutherland algorithm. It
// reports false when the line lies entirely outside.
func ClipLine(clip image.Rectangle, l Line) (Line, bool) {
	if clip.Empty() {
		return l, false
	}
	xmin, ymin := clip.Min.X, clip.Min.Y
	xmax, ymax := clip.Max.X-1, clip.Max.Y-1

	c1 := outcode(clip, l.X1, l.Y1)
	c2 := outcode(clip, l.X2, l.Y2)
	for {
		if c1|c2 == 0 {
			return l, true
		}
		if c1&c2 != 0 {
			return l, false
		}

		c := c1
		if c == 0 {
			c = c2
		}
		dx, dy := l.X2-l.X1, l.Y2-l.Y1
		var x, y int
		switch {
		case c&outTop != 0:
			x, y = l.X1+dx*(ymin-l.Y1)/dy, ymin
		case c&outBottom != 0:
			x, y = l.X1+dx*(ymax-l.Y1)/dy, ymax
		case c&outLeft != 0:
			x, y = xmin, l.Y1+dy*(xmin-l.X1)/dx
		default:
			x, y = xmax, l.Y1+dy*(xmax-l.X1)/dx
		}

		if c == c1 {
			l.X1, l.Y1 = x, y
			c1 = outcode(clip, x, y)
		} else {
			l.X2, l.Y2 = x, y
			c2 = outcode(clip, x, y)
		}
	}
}

// ClipBlit clips a blit of src to destination point dst. The source
// rectangle shrinks by the same amount the destination does.
func ClipBlit(clip, src image.Rectangle, dst image.Point) (image.Rectangle, image.Point, bool) {
	d := src.Sub(src.Min).Add(dst)
	cd := d.Intersect(clip)
	if cd.Empty() {
		return src, dst, false
	}
	off := cd.Min.Sub(d.Min)
	src = image.Rectangle{Min: src.Min.Add(off), Max: src.Min.Add(off).Add(cd.Size())}
	return src, cd.Min, true
}

// ClipStretch clips a stretch blit from src to dst. The parts cut from dst
// are cut from src in proportion.
func ClipStretch(clip, src, dst image.Rectangle) (image.Rectangle, image.Rectangle, bool) {
	cd := dst.Intersect(clip)
	if cd.Empty() || src.Empty() {
		return src, dst, false
	}
	if cd == dst {
		return src, dst, true
	}

	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	cs := image.Rectangle{
		Min: image.Pt(
			src.Min.X+(cd.Min.X-dst.Min.X)*sw/dw,
			src.Min.Y+(cd.Min.Y-dst.Min.Y)*sh/dh,
		),
		Max: image.Pt(
			src.Max.X-(dst.Max.X-cd.Max.X)*sw/dw,
			src.Max.Y-(dst.Max.Y-cd.Max.Y)*sh/dh,
		),
	}
	if cs.Empty() {
		return src, dst, false
	}
	return cs, cd, true
}

// ClipStretchSource trims src to the source bounds of a stretch blit to
// dst. The parts cut from src are cut from dst in proportion.
func ClipStretchSource(bounds, src, dst image.Rectangle) (image.Rectangle, image.Rectangle, bool) {
	cs := src.Intersect(bounds)
	if cs.Empty() || dst.Empty() {
		return src, dst, false
	}
	if cs == src {
		return src, dst, true
	}

	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	cd := image.Rectangle{
		Min: image.Pt(
			dst.Min.X+(cs.Min.X-src.Min.X)*dw/sw,
			dst.Min.Y+(cs.Min.Y-src.Min.Y)*dh/sh,
		),
		Max: image.Pt(
			dst.Max.X-(src.Max.X-cs.Max.X)*dw/sw,
			dst.Max.Y-(src.Max.Y-cs.Max.Y)*dh/sh,
		),
	}
	if cd.Empty() {
		return src, dst, false
	}
	return cs, cd, true
}

// ClipTriangle rejects triangles whose bounds miss clip. Partially visible
// triangles are kept and scissored while rasterizing.
func ClipTriangle(clip image.Rectangle, t Triangle) bool {
	return !t.Degenerate() && t.Bounds().Overlaps(clip)
}
