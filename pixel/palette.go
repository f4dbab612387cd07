package pixel

import "image/color"

// Palette is the color lookup table of an indexed surface.
//
// Palette is not safe for concurrent mutation. Surfaces guard their palette
// with the surface lock, and recorded command streams hold their own copy.
type Palette struct {
	Entries []color.NRGBA
}

// NewPalette returns a palette of n entries initialized to a gray ramp.
func NewPalette(n int) *Palette {
	p := &Palette{Entries: make([]color.NRGBA, n)}
	for i := range p.Entries {
		v := uint8(0)
		if n > 1 {
			v = uint8(i * 255 / (n - 1))
		}
		p.Entries[i] = color.NRGBA{R: v, G: v, B: v, A: 0xff}
	}
	return p
}

// Clone returns a deep copy of the palette. A nil palette clones to nil.
func (p *Palette) Clone() *Palette {
	if p == nil {
		return nil
	}
	entries := make([]color.NRGBA, len(p.Entries))
	copy(entries, p.Entries)
	return &Palette{Entries: entries}
}

// Len returns the number of entries.
func (p *Palette) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// Lookup returns the index of the entry closest to c.
// An exact match always wins; otherwise the squared RGBA distance decides.
func (p *Palette) Lookup(c color.NRGBA) int {
	best, bestDist := 0, int(^uint(0)>>1)
	for i, e := range p.Entries {
		dr := int(e.R) - int(c.R)
		dg := int(e.G) - int(c.G)
		db := int(e.B) - int(c.B)
		da := int(e.A) - int(c.A)
		d := dr*dr + dg*dg + db*db + da*da
		if d == 0 {
			return i
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
