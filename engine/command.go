package engine

import (
	"image"
	"image/color"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

// Command is one entry of a recorded command stream.
//
// The set of commands is closed: every implementation lives in this
// package, and replay decodes them with an exhaustive type switch.
type Command interface {
	// Size returns the encoded length of the command in bytes. One word
	// holds the tag, each field takes one word per 32 bits.
	Size() int

	command()
}

const word = 4

// State commands.
type (
	// SetDestination selects the buffer primitives render into.
	SetDestination struct{ Buffer *surface.Buffer }

	// SetSource selects the buffer blits read from.
	SetSource struct{ Buffer *surface.Buffer }

	// SetClip sets the clip rectangle.
	SetClip struct{ Rect image.Rectangle }

	// SetColor sets the drawing and colorize color.
	SetColor struct{ Color color.NRGBA }

	SetDrawingFlags  struct{ Flags gfx.DrawingFlags }
	SetBlittingFlags struct{ Flags gfx.BlittingFlags }
	SetSrcBlend      struct{ Func gfx.BlendFunction }
	SetDstBlend      struct{ Func gfx.BlendFunction }
	SetSrcColorKey   struct{ Key uint32 }

	// SetDestinationPalette carries the palette of an indexed destination.
	SetDestinationPalette struct{ Entries []color.NRGBA }

	// SetSourcePalette carries the palette of an indexed source.
	SetSourcePalette struct{ Entries []color.NRGBA }
)

// BlitOp copies Src to the rectangle of the same size at Dst.
type BlitOp struct {
	Src image.Rectangle
	Dst image.Point
}

// StretchOp scales Src into Dst.
type StretchOp struct {
	Src image.Rectangle
	Dst image.Rectangle
}

// Primitive commands. Each carries the clipped geometry of one call.
type (
	FillRectangles   struct{ Rects []image.Rectangle }
	DrawLines        struct{ Lines []gfx.Line }
	Blit             struct{ Ops []BlitOp }
	StretchBlit      struct{ Ops []StretchOp }
	TextureTriangles struct{ Triangles []gfx.Triangle }
)

func (SetDestination) Size() int          { return 2 * word }
func (SetSource) Size() int               { return 2 * word }
func (SetClip) Size() int                 { return 5 * word }
func (SetColor) Size() int                { return 2 * word }
func (SetDrawingFlags) Size() int         { return 2 * word }
func (SetBlittingFlags) Size() int        { return 2 * word }
func (SetSrcBlend) Size() int             { return 2 * word }
func (SetDstBlend) Size() int             { return 2 * word }
func (SetSrcColorKey) Size() int          { return 2 * word }
func (c SetDestinationPalette) Size() int { return (2 + len(c.Entries)) * word }
func (c SetSourcePalette) Size() int      { return (2 + len(c.Entries)) * word }
func (c FillRectangles) Size() int        { return (2 + 4*len(c.Rects)) * word }
func (c DrawLines) Size() int             { return (2 + 4*len(c.Lines)) * word }
func (c Blit) Size() int                  { return (2 + 6*len(c.Ops)) * word }
func (c StretchBlit) Size() int           { return (2 + 8*len(c.Ops)) * word }
func (c TextureTriangles) Size() int      { return (2 + 18*len(c.Triangles)) * word }

func (SetDestination) command()        {}
func (SetSource) command()             {}
func (SetClip) command()               {}
func (SetColor) command()              {}
func (SetDrawingFlags) command()       {}
func (SetBlittingFlags) command()      {}
func (SetSrcBlend) command()           {}
func (SetDstBlend) command()           {}
func (SetSrcColorKey) command()        {}
func (SetDestinationPalette) command() {}
func (SetSourcePalette) command()      {}
func (FillRectangles) command()        {}
func (DrawLines) command()             {}
func (Blit) command()                  {}
func (StretchBlit) command()           {}
func (TextureTriangles) command()      {}

// Chunk is a closed, immutable part of a command log.
type Chunk []Command

// commandLog is an append-only command buffer made of chunks. Appending
// never touches a closed chunk; sealing closes the open one and hands out
// the chunk list.
type commandLog struct {
	chunkSize int

	closed   []Chunk
	open     []Command
	openSize int

	length int
	count  int
}

func (l *commandLog) append(c Command) {
	l.open = append(l.open, c)
	n := c.Size()
	l.openSize += n
	l.length += n
	l.count++
	if l.openSize >= l.chunkSize {
		l.closeChunk()
	}
}

func (l *commandLog) closeChunk() {
	if len(l.open) == 0 {
		return
	}
	l.closed = append(l.closed, Chunk(l.open))
	l.open = nil
	l.openSize = 0
}

// seal closes the open chunk and returns every chunk.
func (l *commandLog) seal() []Chunk {
	l.closeChunk()
	return l.closed
}
