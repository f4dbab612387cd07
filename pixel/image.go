package pixel

import (
	"image"
	"image/color"
)

// Image is a draw.Image view of raw surface memory.
//
// Pix holds the rows starting at Rect.Min; Pitch is the byte distance
// between rows. Image does not own Pix: it is typically the address
// returned by a surface lock and is only valid until the matching unlock.
type Image struct {
	Pix     []byte
	Pitch   int
	Format  Format
	Rect    image.Rectangle
	Palette *Palette
}

// NewImage wraps mem as a width x height image of format f.
func NewImage(mem []byte, pitch int, f Format, width, height int, pal *Palette) *Image {
	return &Image{
		Pix:     mem,
		Pitch:   pitch,
		Format:  f,
		Rect:    image.Rect(0, 0, width, height),
		Palette: pal,
	}
}

// ColorModel returns color.NRGBAModel; surface colors are not premultiplied.
func (m *Image) ColorModel() color.Model { return color.NRGBAModel }

// Bounds returns the image rectangle.
func (m *Image) Bounds() image.Rectangle { return m.Rect }

// PixOffset returns the byte offset of pixel (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Pitch + (x-m.Rect.Min.X)*m.Format.BytesPerPixel()
}

// At returns the color of pixel (x, y), or transparent black outside Rect.
func (m *Image) At(x, y int) color.Color {
	return m.NRGBAAt(x, y)
}

// NRGBAAt is At without the interface conversion.
func (m *Image) NRGBAAt(x, y int) color.NRGBA {
	if !(image.Point{X: x, Y: y}).In(m.Rect) {
		return color.NRGBA{}
	}
	return Unpack(m.Format, Load(m.Format, m.Pix, m.PixOffset(x, y)), m.Palette)
}

// Set stores c at (x, y). Points outside Rect are ignored.
func (m *Image) Set(x, y int, c color.Color) {
	m.SetNRGBA(x, y, color.NRGBAModel.Convert(c).(color.NRGBA))
}

// SetNRGBA is Set without the color model conversion.
func (m *Image) SetNRGBA(x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(m.Rect) {
		return
	}
	Store(m.Format, m.Pix, m.PixOffset(x, y), Pack(m.Format, c, m.Palette))
}

// Raw returns the packed value at (x, y) without conversion.
func (m *Image) Raw(x, y int) uint32 {
	return Load(m.Format, m.Pix, m.PixOffset(x, y))
}

// SetRaw stores a packed value at (x, y) without conversion.
func (m *Image) SetRaw(x, y int, v uint32) {
	Store(m.Format, m.Pix, m.PixOffset(x, y), v)
}

// SubImage returns the part of m visible through r. The returned image
// shares memory with m.
func (m *Image) SubImage(r image.Rectangle) *Image {
	r = r.Intersect(m.Rect)
	if r.Empty() {
		return &Image{Format: m.Format, Palette: m.Palette}
	}
	off := m.PixOffset(r.Min.X, r.Min.Y)
	return &Image{
		Pix:     m.Pix[off:],
		Pitch:   m.Pitch,
		Format:  m.Format,
		Rect:    r,
		Palette: m.Palette,
	}
}

// CopyRect copies the pixels of r from src into m at the same coordinates.
// Both images must share a format.
func (m *Image) CopyRect(src *Image, r image.Rectangle) {
	r = r.Intersect(m.Rect).Intersect(src.Rect)
	if r.Empty() {
		return
	}
	n := r.Dx() * m.Format.BytesPerPixel()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		d := m.PixOffset(r.Min.X, y)
		s := src.PixOffset(r.Min.X, y)
		copy(m.Pix[d:d+n], src.Pix[s:s+n])
	}
}
