// Package raster renders primitives into surface memory in software.
//
// All functions clip against the destination image and read the drawing
// parameters from a gfx.RenderState. Source and destination of a blit must
// not share memory; Snapshot copies a region out of an image first.
package raster

import (
	"image"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/pixel"
)

// plotter returns a function drawing one pixel with the drawing flags of s.
// DrawXOR takes precedence over DrawBlend.
func plotter(dst *pixel.Image, s *gfx.RenderState) func(x, y int) {
	packed := pixel.Pack(dst.Format, s.Color, dst.Palette)
	switch {
	case s.DrawingFlags&gfx.DrawXOR != 0:
		return func(x, y int) { dst.SetRaw(x, y, dst.Raw(x, y)^packed) }
	case s.DrawingFlags&gfx.DrawBlend != 0:
		return func(x, y int) {
			dst.SetNRGBA(x, y, Blend(s.Color, dst.NRGBAAt(x, y), s.SrcBlend, s.DstBlend))
		}
	}
	return func(x, y int) { dst.SetRaw(x, y, packed) }
}

// FillRectangle fills r with the state color.
func FillRectangle(dst *pixel.Image, r image.Rectangle, s *gfx.RenderState) {
	r = r.Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	if s.DrawingFlags == gfx.DrawNoFx {
		fillRows(dst, r, pixel.Pack(dst.Format, s.Color, dst.Palette))
		return
	}
	plot := plotter(dst, s)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			plot(x, y)
		}
	}
}

// fillRows stores v into the first row of r and replicates that row.
func fillRows(dst *pixel.Image, r image.Rectangle, v uint32) {
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.SetRaw(x, r.Min.Y, v)
	}
	n := r.Dx() * dst.Format.BytesPerPixel()
	first := dst.PixOffset(r.Min.X, r.Min.Y)
	for y := r.Min.Y + 1; y < r.Max.Y; y++ {
		off := dst.PixOffset(r.Min.X, y)
		copy(dst.Pix[off:off+n], dst.Pix[first:first+n])
	}
}

// DrawLine draws l including both end points with Bresenham's algorithm.
func DrawLine(dst *pixel.Image, l gfx.Line, s *gfx.RenderState) {
	plot := plotter(dst, s)
	dx, dy := abs(l.X2-l.X1), -abs(l.Y2-l.Y1)
	sx, sy := sign(l.X2-l.X1), sign(l.Y2-l.Y1)
	e := dx + dy
	x, y := l.X1, l.Y1
	for {
		if (image.Point{X: x, Y: y}).In(dst.Rect) {
			plot(x, y)
		}
		if x == l.X2 && y == l.Y2 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// Snapshot returns a copy of the pixels of m inside r, keeping their
// coordinates. Pass the copy to Release when done.
func Snapshot(m *pixel.Image, r image.Rectangle) *pixel.Image {
	r = r.Intersect(m.Rect)
	c := scratch.get(m.Format, r, m.Palette)
	c.CopyRect(m, r)
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
