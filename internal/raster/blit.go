package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/internal/cache"
	"github.com/deniskropp/DirectFB-sub015/pixel"
)

// blitter writes source pixels with the blitting flags of a state.
type blitter struct {
	dst, src *pixel.Image
	s        *gfx.RenderState
	keyed    bool
	blend    bool

	// index remembers palette lookups of indexed destinations.
	index *cache.Cache[color.NRGBA, uint32]
}

// indexCacheSize bounds the palette lookups remembered per operation.
const indexCacheSize = 1024

func newBlitter(dst, src *pixel.Image, s *gfx.RenderState) *blitter {
	b := &blitter{
		dst:   dst,
		src:   src,
		s:     s,
		keyed: s.BlittingFlags&gfx.BlitSrcColorKey != 0,
		blend: s.Blending(),
	}
	if dst.Format.IsIndexed() && dst.Palette != nil {
		b.index = cache.New[color.NRGBA, uint32](indexCacheSize)
	}
	return b
}

// put copies source pixel (sx, sy) to destination pixel (dx, dy).
func (b *blitter) put(sx, sy, dx, dy int) {
	if b.keyed && b.src.Raw(sx, sy) == b.s.SrcColorKey {
		return
	}
	c := modulate(b.src.NRGBAAt(sx, sy), b.s)
	if b.blend {
		c = Blend(c, b.dst.NRGBAAt(dx, dy), b.s.SrcBlend, b.s.DstBlend)
	}
	if b.index == nil {
		b.dst.SetNRGBA(dx, dy, c)
		return
	}
	v := b.index.GetOrCreate(c, func() uint32 {
		return uint32(b.dst.Palette.Lookup(c))
	})
	b.dst.SetRaw(dx, dy, v)
}

// plain reports whether rows can be copied without per pixel work.
func (b *blitter) plain() bool {
	return b.s.BlittingFlags&^gfx.BlitSmooth == gfx.BlitNoFx &&
		b.dst.Format == b.src.Format && !b.dst.Format.IsIndexed()
}

// Blit copies sr of src to dst with its top left corner at dp.
func Blit(dst, src *pixel.Image, sr image.Rectangle, dp image.Point, s *gfx.RenderState) {
	clipped := sr.Intersect(src.Rect)
	dp = dp.Add(clipped.Min.Sub(sr.Min))
	sr, dp, ok := gfx.ClipBlit(dst.Rect, clipped, dp)
	if !ok {
		return
	}

	b := newBlitter(dst, src, s)
	if b.plain() {
		n := sr.Dx() * dst.Format.BytesPerPixel()
		for y := 0; y < sr.Dy(); y++ {
			d := dst.PixOffset(dp.X, dp.Y+y)
			o := src.PixOffset(sr.Min.X, sr.Min.Y+y)
			copy(dst.Pix[d:d+n], src.Pix[o:o+n])
		}
		return
	}
	for y := 0; y < sr.Dy(); y++ {
		for x := 0; x < sr.Dx(); x++ {
			b.put(sr.Min.X+x, sr.Min.Y+y, dp.X+x, dp.Y+y)
		}
	}
}

// StretchBlit scales sr of src into dr of dst. The source is scaled with
// nearest neighbor sampling, or bilinear filtering with gfx.BlitSmooth,
// and then blitted with the remaining flags.
func StretchBlit(dst, src *pixel.Image, sr, dr image.Rectangle, s *gfx.RenderState) {
	sr = sr.Intersect(src.Rect)
	if sr.Empty() || dr.Empty() {
		return
	}
	if sr.Size() == dr.Size() {
		Blit(dst, src, sr, dr.Min, s)
		return
	}

	scaled := scratch.get(src.Format, image.Rect(0, 0, dr.Dx(), dr.Dy()), src.Palette)
	defer scratch.put(scaled)

	var scaler draw.Scaler = draw.NearestNeighbor
	if s.BlittingFlags&gfx.BlitSmooth != 0 {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(scaled, scaled.Rect, src, sr, draw.Src, nil)

	Blit(dst, scaled, scaled.Rect, dr.Min, s)
}
