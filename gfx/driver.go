package gfx

import (
	"context"
	"errors"
	"image"

	"github.com/gogpu/gpucontext"
)

var (
	// ErrUnsupported is returned when a primitive cannot run with the
	// current state.
	ErrUnsupported = errors.New("gfx: operation not supported")

	// ErrInterrupted is returned by Driver.Sync when the wait was
	// interrupted before the accelerator went idle. Callers retry.
	ErrInterrupted = errors.New("gfx: wait interrupted")
)

// Driver is the boundary to an accelerator.
//
// A driver reports what it can do through CheckState by setting bits in
// RenderState.Accel, never by failing. SetState is called before a run of
// primitives with RenderState.Dst (and Src for blits) locked for hardware
// access. Primitive methods return false when the hardware refused the
// operation.
type Driver interface {
	// Info describes the accelerator.
	Info() gpucontext.AdapterInfo

	// Reset puts the accelerator into a known state.
	Reset()

	// Sync waits until the accelerator is idle. An interrupted wait
	// returns ErrInterrupted.
	Sync(ctx context.Context) error

	// EmitCommands submits buffered commands to the hardware.
	EmitCommands()

	// CheckState sets op in s.Accel if the primitive is supported with s.
	CheckState(s *RenderState, op Accel)

	// SetState programs the accelerator for op with s.
	SetState(s *RenderState, op Accel) error

	FillRectangle(r image.Rectangle) bool
	DrawLine(l Line) bool
	Blit(src image.Rectangle, dst image.Point) bool
	StretchBlit(src, dst image.Rectangle) bool
	TextureTriangles(tris []Triangle) bool
}
