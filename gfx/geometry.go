// Package gfx defines the hardware independent drawing model: geometry,
// clipping, the render state with its dirty mask and the driver boundary
// implemented by accelerators.
package gfx

import (
	"fmt"
	"image"
)

// Line is a line segment between two inclusive end points.
type Line struct {
	X1, Y1, X2, Y2 int
}

// Bounds returns the smallest rectangle containing both end points.
func (l Line) Bounds() image.Rectangle {
	return image.Rect(min(l.X1, l.X2), min(l.Y1, l.Y2), max(l.X1, l.X2)+1, max(l.Y1, l.Y2)+1)
}

// Length returns the number of pixels the line covers.
func (l Line) Length() int {
	return max(abs(l.X2-l.X1), abs(l.Y2-l.Y1)) + 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Vertex is a textured triangle corner. X and Y are destination pixel
// coordinates; S and T are source pixel coordinates.
type Vertex struct {
	X, Y, Z, W float32
	S, T       float32
}

// Formation tells how a vertex list forms triangles.
type Formation uint8

const (
	// TriangleList uses every three vertices as one triangle.
	TriangleList Formation = iota

	// TriangleStrip forms a triangle from every vertex with its two
	// predecessors.
	TriangleStrip

	// TriangleFan forms a triangle from the first vertex and every
	// following pair.
	TriangleFan
)

// String returns the formation name.
func (f Formation) String() string {
	switch f {
	case TriangleList:
		return "list"
	case TriangleStrip:
		return "strip"
	case TriangleFan:
		return "fan"
	}
	return fmt.Sprintf("Formation(%d)", uint8(f))
}

// Triangle is one textured triangle.
type Triangle [3]Vertex

// Bounds returns the integer destination rectangle covering t.
func (t Triangle) Bounds() image.Rectangle {
	minX, minY := t[0].X, t[0].Y
	maxX, maxY := minX, minY
	for _, v := range t[1:] {
		minX, maxX = min(minX, v.X), max(maxX, v.X)
		minY, maxY = min(minY, v.Y), max(maxY, v.Y)
	}
	return image.Rect(floor(minX), floor(minY), floor(maxX)+1, floor(maxY)+1)
}

func (t Triangle) cross() float32 {
	return (t[1].X-t[0].X)*(t[2].Y-t[0].Y) - (t[2].X-t[0].X)*(t[1].Y-t[0].Y)
}

// Area returns the destination pixel area of t, rounded down.
func (t Triangle) Area() int {
	a := t.cross()
	if a < 0 {
		a = -a
	}
	return int(a / 2)
}

// Degenerate reports whether the corners of t are collinear.
func (t Triangle) Degenerate() bool {
	return t.cross() == 0
}

func floor(v float32) int {
	i := int(v)
	if float32(i) > v {
		i--
	}
	return i
}

// Triangles expands vertices into triangles according to f.
func Triangles(vertices []Vertex, f Formation) ([]Triangle, error) {
	n := len(vertices)
	var tris []Triangle
	switch f {
	case TriangleList:
		if n%3 != 0 {
			return nil, fmt.Errorf("gfx: %d vertices do not form a triangle list", n)
		}
		for i := 0; i+2 < n; i += 3 {
			tris = append(tris, Triangle{vertices[i], vertices[i+1], vertices[i+2]})
		}
	case TriangleStrip:
		for i := 2; i < n; i++ {
			tris = append(tris, Triangle{vertices[i-2], vertices[i-1], vertices[i]})
		}
	case TriangleFan:
		for i := 2; i < n; i++ {
			tris = append(tris, Triangle{vertices[0], vertices[i-1], vertices[i]})
		}
	default:
		return nil, fmt.Errorf("gfx: unknown formation %d", f)
	}
	return tris, nil
}
