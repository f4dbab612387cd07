package raster

import (
	"image/color"

	"github.com/deniskropp/DirectFB-sub015/gfx"
)

// mulDiv255 multiplies two bytes and divides by 255 exactly.
//
// Formula: ((x + 1) + ((x + 1) >> 8)) >> 8 with x = a * b.
func mulDiv255(a, b uint8) uint8 {
	t := uint16(a)*uint16(b) + 1
	return uint8((t + t>>8) >> 8)
}

// addClamp adds two bytes and clamps to 255.
func addClamp(a, b uint8) uint8 {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}

func splat(v uint8) [4]uint8 { return [4]uint8{v, v, v, v} }

func channels(c color.NRGBA) [4]uint8 { return [4]uint8{c.R, c.G, c.B, c.A} }

func inverse(f [4]uint8) [4]uint8 {
	return [4]uint8{255 - f[0], 255 - f[1], 255 - f[2], 255 - f[3]}
}

// factor returns the per channel factor of blend function f.
func factor(f gfx.BlendFunction, src, dst color.NRGBA) [4]uint8 {
	switch f {
	case gfx.BlendZero:
		return splat(0)
	case gfx.BlendSrcColor:
		return channels(src)
	case gfx.BlendInvSrcColor:
		return inverse(channels(src))
	case gfx.BlendSrcAlpha:
		return splat(src.A)
	case gfx.BlendInvSrcAlpha:
		return splat(255 - src.A)
	case gfx.BlendDstAlpha:
		return splat(dst.A)
	case gfx.BlendInvDstAlpha:
		return splat(255 - dst.A)
	case gfx.BlendDstColor:
		return channels(dst)
	case gfx.BlendInvDstColor:
		return inverse(channels(dst))
	case gfx.BlendSrcAlphaSat:
		v := min(src.A, 255-dst.A)
		return [4]uint8{v, v, v, 255}
	}
	return splat(255)
}

// Blend combines src and dst as src*sf + dst*df per channel.
func Blend(src, dst color.NRGBA, sf, df gfx.BlendFunction) color.NRGBA {
	fs := factor(sf, src, dst)
	fd := factor(df, src, dst)
	return color.NRGBA{
		R: addClamp(mulDiv255(src.R, fs[0]), mulDiv255(dst.R, fd[0])),
		G: addClamp(mulDiv255(src.G, fs[1]), mulDiv255(dst.G, fd[1])),
		B: addClamp(mulDiv255(src.B, fs[2]), mulDiv255(dst.B, fd[2])),
		A: addClamp(mulDiv255(src.A, fs[3]), mulDiv255(dst.A, fd[3])),
	}
}

// modulate applies the colorize and color alpha blitting flags to a
// source pixel.
func modulate(c color.NRGBA, s *gfx.RenderState) color.NRGBA {
	f := s.BlittingFlags
	if f&gfx.BlitColorize != 0 {
		c.R = mulDiv255(c.R, s.Color.R)
		c.G = mulDiv255(c.G, s.Color.G)
		c.B = mulDiv255(c.B, s.Color.B)
	}
	switch {
	case f&gfx.BlitBlendColorAlpha != 0 && f&gfx.BlitBlendAlphaChannel != 0:
		c.A = mulDiv255(c.A, s.Color.A)
	case f&gfx.BlitBlendColorAlpha != 0:
		c.A = s.Color.A
	}
	return c
}
