package gfx

import (
	"image"
	"image/color"

	"github.com/deniskropp/DirectFB-sub015/surface"
)

// DrawingFlags modify fill and line primitives.
type DrawingFlags uint8

const (
	DrawNoFx DrawingFlags = 0

	// DrawBlend blends the color with the destination using the blend
	// functions.
	DrawBlend DrawingFlags = 1 << iota

	// DrawXOR xors the color into the destination.
	DrawXOR
)

// BlittingFlags modify blit primitives.
type BlittingFlags uint8

const (
	BlitNoFx BlittingFlags = 0

	// BlitBlendAlphaChannel blends using the source alpha channel.
	BlitBlendAlphaChannel BlittingFlags = 1 << iota

	// BlitBlendColorAlpha blends using the alpha of the state color.
	BlitBlendColorAlpha

	// BlitColorize multiplies source pixels with the state color.
	BlitColorize

	// BlitSrcColorKey skips source pixels equal to the source color key.
	BlitSrcColorKey

	// BlitSmooth filters stretched blits bilinearly.
	BlitSmooth
)

// BlendFunction is a blend factor.
type BlendFunction uint8

const (
	BlendZero BlendFunction = iota + 1
	BlendOne
	BlendSrcColor
	BlendInvSrcColor
	BlendSrcAlpha
	BlendInvSrcAlpha
	BlendDstAlpha
	BlendInvDstAlpha
	BlendDstColor
	BlendInvDstColor
	BlendSrcAlphaSat
)

// StateFlags is the dirty mask of a RenderState.
type StateFlags uint16

const (
	ModDestination StateFlags = 1 << iota
	ModClip
	ModSource
	ModColor
	ModDrawingFlags
	ModBlittingFlags
	ModSrcBlend
	ModDstBlend
	ModSrcColorKey

	ModNone StateFlags = 0
	ModAll             = ModDestination | ModClip | ModSource | ModColor |
		ModDrawingFlags | ModBlittingFlags | ModSrcBlend | ModDstBlend | ModSrcColorKey
)

// Accel is a set of primitives.
type Accel uint8

const (
	AccelFillRectangle Accel = 1 << iota
	AccelDrawLine
	AccelBlit
	AccelStretchBlit
	AccelTextureTriangles

	AccelNone Accel = 0
	AccelAll        = AccelFillRectangle | AccelDrawLine | AccelBlit |
		AccelStretchBlit | AccelTextureTriangles
)

// IsDrawing reports whether a contains a drawing primitive.
func (a Accel) IsDrawing() bool {
	return a&(AccelFillRectangle|AccelDrawLine) != 0
}

// IsBlitting reports whether a contains a blitting primitive.
func (a Accel) IsBlitting() bool {
	return a&(AccelBlit|AccelStretchBlit|AccelTextureTriangles) != 0
}

// String returns the primitive name of a single bit.
func (a Accel) String() string {
	switch a {
	case AccelFillRectangle:
		return "FillRectangle"
	case AccelDrawLine:
		return "DrawLine"
	case AccelBlit:
		return "Blit"
	case AccelStretchBlit:
		return "StretchBlit"
	case AccelTextureTriangles:
		return "TextureTriangles"
	}
	return "Accel"
}

// RenderState is the drawing state shared by producers, engines and
// drivers.
//
// Setters mark the changed field in Modified. A consumer clears bits with
// Clean once it has materialized the corresponding fields.
type RenderState struct {
	Destination *surface.Surface
	To          surface.Role

	Source *surface.Surface
	From   surface.Role

	Color         color.NRGBA
	DrawingFlags  DrawingFlags
	BlittingFlags BlittingFlags
	SrcBlend      BlendFunction
	DstBlend      BlendFunction
	SrcColorKey   uint32
	Clip          image.Rectangle

	Modified StateFlags

	// Accel is set by CheckState for every primitive that can run with the
	// current state.
	Accel Accel

	// Dst and Src are the buffers locked for the primitive being executed.
	Dst *surface.Lock
	Src *surface.Lock
}

// NewRenderState returns a state with default blending, opaque white and
// every field dirty.
func NewRenderState() *RenderState {
	return &RenderState{
		To:       surface.RoleBack,
		From:     surface.RoleFront,
		Color:    color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		SrcBlend: BlendSrcAlpha,
		DstBlend: BlendInvSrcAlpha,
		Modified: ModAll,
	}
}

// SetDestination sets the destination surface and resets the clip to its
// bounds.
func (s *RenderState) SetDestination(dst *surface.Surface) {
	if s.Destination != dst {
		s.Destination = dst
		s.Modified |= ModDestination
	}
	if dst != nil {
		s.SetClip(dst.Bounds())
	}
}

// SetSource sets the blit source.
func (s *RenderState) SetSource(src *surface.Surface) {
	if s.Source != src {
		s.Source = src
		s.Modified |= ModSource
	}
}

// SetClip sets the clip rectangle.
func (s *RenderState) SetClip(r image.Rectangle) {
	if s.Clip != r {
		s.Clip = r
		s.Modified |= ModClip
	}
}

// SetColor sets the drawing color.
func (s *RenderState) SetColor(c color.NRGBA) {
	if s.Color != c {
		s.Color = c
		s.Modified |= ModColor
	}
}

// SetDrawingFlags sets the drawing flags.
func (s *RenderState) SetDrawingFlags(f DrawingFlags) {
	if s.DrawingFlags != f {
		s.DrawingFlags = f
		s.Modified |= ModDrawingFlags
	}
}

// SetBlittingFlags sets the blitting flags.
func (s *RenderState) SetBlittingFlags(f BlittingFlags) {
	if s.BlittingFlags != f {
		s.BlittingFlags = f
		s.Modified |= ModBlittingFlags
	}
}

// SetSrcBlend sets the source blend factor.
func (s *RenderState) SetSrcBlend(f BlendFunction) {
	if s.SrcBlend != f {
		s.SrcBlend = f
		s.Modified |= ModSrcBlend
	}
}

// SetDstBlend sets the destination blend factor.
func (s *RenderState) SetDstBlend(f BlendFunction) {
	if s.DstBlend != f {
		s.DstBlend = f
		s.Modified |= ModDstBlend
	}
}

// SetSrcColorKey sets the raw source color key.
func (s *RenderState) SetSrcColorKey(key uint32) {
	if s.SrcColorKey != key {
		s.SrcColorKey = key
		s.Modified |= ModSrcColorKey
	}
}

// Clean clears f from the dirty mask.
func (s *RenderState) Clean(f StateFlags) {
	s.Modified &^= f
}

// Blending reports whether blits with the current flags blend.
func (s *RenderState) Blending() bool {
	return s.BlittingFlags&(BlitBlendAlphaChannel|BlitBlendColorAlpha) != 0
}

// Converting reports whether blits need per pixel format conversion.
func (s *RenderState) Converting() bool {
	return s.Source != nil && s.Destination != nil &&
		s.Source.Format() != s.Destination.Format()
}
