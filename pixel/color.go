package pixel

import (
	"encoding/binary"
	"image/color"
)

// Pack converts c to the packed pixel value of format f.
// For indexed formats the nearest palette entry is chosen; a nil palette
// yields index 0.
func Pack(f Format, c color.NRGBA, pal *Palette) uint32 {
	switch f {
	case FormatARGB:
		return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
	case FormatRGB32:
		return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
	case FormatRGB16:
		return uint32(c.R>>3)<<11 | uint32(c.G>>2)<<5 | uint32(c.B>>3)
	case FormatARGB1555:
		var a uint32
		if c.A >= 0x80 {
			a = 1
		}
		return a<<15 | uint32(c.R>>3)<<10 | uint32(c.G>>3)<<5 | uint32(c.B>>3)
	case FormatA8:
		return uint32(c.A)
	case FormatLUT8:
		if pal == nil {
			return 0
		}
		return uint32(pal.Lookup(c))
	default:
		return 0
	}
}

// Unpack converts a packed pixel value of format f to a color.
func Unpack(f Format, v uint32, pal *Palette) color.NRGBA {
	switch f {
	case FormatARGB:
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
	case FormatRGB32:
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	case FormatRGB16:
		return color.NRGBA{
			R: expand5(uint8(v>>11) & 0x1f),
			G: expand6(uint8(v>>5) & 0x3f),
			B: expand5(uint8(v) & 0x1f),
			A: 0xff,
		}
	case FormatARGB1555:
		a := uint8(0)
		if v&0x8000 != 0 {
			a = 0xff
		}
		return color.NRGBA{
			R: expand5(uint8(v>>10) & 0x1f),
			G: expand5(uint8(v>>5) & 0x1f),
			B: expand5(uint8(v) & 0x1f),
			A: a,
		}
	case FormatA8:
		return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: uint8(v)}
	case FormatLUT8:
		if pal == nil || int(v) >= len(pal.Entries) {
			return color.NRGBA{}
		}
		return pal.Entries[v]
	default:
		return color.NRGBA{}
	}
}

func expand5(v uint8) uint8 { return v<<3 | v>>2 }
func expand6(v uint8) uint8 { return v<<2 | v>>4 }

// Load reads the packed pixel at byte offset off.
func Load(f Format, mem []byte, off int) uint32 {
	switch f.BytesPerPixel() {
	case 4:
		return binary.LittleEndian.Uint32(mem[off:])
	case 2:
		return uint32(binary.LittleEndian.Uint16(mem[off:]))
	case 1:
		return uint32(mem[off])
	default:
		return 0
	}
}

// Store writes the packed pixel v at byte offset off.
func Store(f Format, mem []byte, off int, v uint32) {
	switch f.BytesPerPixel() {
	case 4:
		binary.LittleEndian.PutUint32(mem[off:], v)
	case 2:
		binary.LittleEndian.PutUint16(mem[off:], uint16(v))
	case 1:
		mem[off] = uint8(v)
	}
}
