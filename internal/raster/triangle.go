package raster

import (
	"image"
	"math"

	"golang.org/x/image/math/fixed"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/pixel"
)

func toFixed(v float32) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(float64(v) * 64))
}

// edge returns twice the signed area of triangle a, b, c in 26.6 units
// squared. It is positive when c lies left of a->b.
func edge(a, b, c fixed.Point26_6) int64 {
	return int64(b.X-a.X)*int64(c.Y-a.Y) - int64(b.Y-a.Y)*int64(c.X-a.X)
}

// TextureTriangle maps src onto triangle t, scissored by clip. Pixels are
// covered when their center lies inside or on an edge of t. Texture
// coordinates are interpolated linearly and sampled at the nearest source
// pixel.
func TextureTriangle(dst, src *pixel.Image, t gfx.Triangle, clip image.Rectangle, s *gfx.RenderState) {
	clip = clip.Intersect(dst.Rect).Intersect(t.Bounds())
	if clip.Empty() || src.Rect.Empty() {
		return
	}

	var p [3]fixed.Point26_6
	for i, v := range t {
		p[i] = fixed.Point26_6{X: toFixed(v.X), Y: toFixed(v.Y)}
	}
	area := edge(p[0], p[1], p[2])
	if area == 0 {
		return
	}
	orient := int64(1)
	if area < 0 {
		orient, area = -1, -area
	}
	inv := 1 / float64(area)

	b := newBlitter(dst, src, s)
	half := fixed.Int26_6(32)
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		py := fixed.I(y) + half
		for x := clip.Min.X; x < clip.Max.X; x++ {
			pt := fixed.Point26_6{X: fixed.I(x) + half, Y: py}
			w0 := orient * edge(p[1], p[2], pt)
			w1 := orient * edge(p[2], p[0], pt)
			w2 := orient * edge(p[0], p[1], pt)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			l0, l1, l2 := float64(w0)*inv, float64(w1)*inv, float64(w2)*inv
			u := l0*float64(t[0].S) + l1*float64(t[1].S) + l2*float64(t[2].S)
			v := l0*float64(t[0].T) + l1*float64(t[1].T) + l2*float64(t[2].T)
			sx := clamp(int(math.Floor(u)), src.Rect.Min.X, src.Rect.Max.X-1)
			sy := clamp(int(math.Floor(v)), src.Rect.Min.Y, src.Rect.Max.Y-1)
			b.put(sx, sy, x, y)
		}
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
