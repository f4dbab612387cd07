// Package pixel describes how surface memory is laid out.
//
// A Format fixes the number of bytes per pixel and how a packed pixel value
// maps to a non-premultiplied color. Packed values are stored little-endian
// regardless of host byte order, so surface memory has one well-defined
// layout on every platform.
package pixel

import "github.com/gogpu/gputypes"

// Format represents a pixel storage format.
type Format uint8

const (
	// FormatUnknown is the zero Format. It is never valid for allocation.
	FormatUnknown Format = iota

	// FormatARGB is 32-bit ARGB, packed as 0xAARRGGBB.
	FormatARGB

	// FormatRGB32 is 32-bit RGB with an unused top byte, packed as 0x00RRGGBB.
	FormatRGB32

	// FormatRGB16 is 16-bit RGB 5-6-5.
	FormatRGB16

	// FormatARGB1555 is 16-bit ARGB with a 1-bit alpha.
	FormatARGB1555

	// FormatA8 is an 8-bit alpha-only format.
	FormatA8

	// FormatLUT8 is 8-bit indexed; colors come from the surface palette.
	FormatLUT8

	formatCount
)

// FormatInfo contains metadata about a pixel format.
type FormatInfo struct {
	Name          string
	BytesPerPixel int
	HasAlpha      bool
	Indexed       bool

	// Texture is the accelerator texture format, or
	// gputypes.TextureFormatUndefined when the accelerator cannot hold it.
	Texture gputypes.TextureFormat
}

var formatInfoTable = [formatCount]FormatInfo{
	FormatUnknown: {Name: "Unknown"},
	FormatARGB: {
		Name:          "ARGB",
		BytesPerPixel: 4,
		HasAlpha:      true,
		Texture:       gputypes.TextureFormatBGRA8Unorm,
	},
	FormatRGB32: {
		Name:          "RGB32",
		BytesPerPixel: 4,
		Texture:       gputypes.TextureFormatBGRA8Unorm,
	},
	FormatRGB16: {
		Name:          "RGB16",
		BytesPerPixel: 2,
		Texture:       gputypes.TextureFormatR16Uint,
	},
	FormatARGB1555: {
		Name:          "ARGB1555",
		BytesPerPixel: 2,
		HasAlpha:      true,
		Texture:       gputypes.TextureFormatR16Uint,
	},
	FormatA8: {
		Name:          "A8",
		BytesPerPixel: 1,
		HasAlpha:      true,
		Texture:       gputypes.TextureFormatR8Unorm,
	},
	FormatLUT8: {
		Name:          "LUT8",
		BytesPerPixel: 1,
		Indexed:       true,
		Texture:       gputypes.TextureFormatR8Uint,
	},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{Name: "Unknown"}
	}
	return formatInfoTable[f]
}

// IsValid returns true for every known format except FormatUnknown.
func (f Format) IsValid() bool {
	return f > FormatUnknown && f < formatCount
}

// BytesPerPixel returns the number of bytes per pixel.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// HasAlpha reports whether the format stores an alpha channel.
func (f Format) HasAlpha() bool {
	return f.Info().HasAlpha
}

// IsIndexed reports whether pixels are palette indices.
func (f Format) IsIndexed() bool {
	return f.Info().Indexed
}

// TextureFormat returns the accelerator texture format for f.
func (f Format) TextureFormat() gputypes.TextureFormat {
	return f.Info().Texture
}

// String returns the format name.
func (f Format) String() string {
	return f.Info().Name
}

// Pitch returns the number of bytes in one row of width pixels.
// Rows are padded to a multiple of 8 bytes.
func (f Format) Pitch(width int) int {
	return (width*f.BytesPerPixel() + 7) &^ 7
}

// Size returns the number of bytes needed for a width x height image.
func (f Format) Size(width, height int) int {
	return f.Pitch(width) * height
}

// Formats returns every valid format in declaration order.
func Formats() []Format {
	out := make([]Format, 0, formatCount-1)
	for f := FormatUnknown + 1; f < formatCount; f++ {
		out = append(out, f)
	}
	return out
}
