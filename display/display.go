// Package display schedules flips and updates of layer regions.
//
// A Region shows one surface (two in stereo) on a display layer with a
// buffer mode. Scheduler.Generate decides how a flip request is served:
// swap the buffer roles, copy the updated rectangles from back to front,
// or only tell the layer driver which area changed. Role swaps happen in
// Generate; copies, driver notifications and vertical sync waits run later
// in a DisplayTask on the scheduler workers. DisplayTasks of one region
// complete in the order they were pushed.
package display

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"

	fbcore "github.com/deniskropp/DirectFB-sub015"
)

// Display errors.
var (
	// ErrSuspended is returned by hardware waits while the region is
	// suspended.
	ErrSuspended = errors.New("display: region suspended")

	// ErrInterrupted is returned by a LayerDriver when a wait was
	// interrupted before it completed. The scheduler retries the wait.
	ErrInterrupted = errors.New("display: wait interrupted")

	// ErrSurfaceDestroyed is returned when a region shows a destroyed
	// surface.
	ErrSurfaceDestroyed = errors.New("display: surface destroyed")

	// ErrClosed is returned after Scheduler.Close.
	ErrClosed = errors.New("display: scheduler closed")

	// ErrInvalidRegion is returned by NewRegion for unusable
	// configurations.
	ErrInvalidRegion = errors.New("display: invalid region configuration")
)

func logger() *slog.Logger { return fbcore.Logger() }

// BufferMode selects how a region presents new content.
type BufferMode uint8

const (
	// FrontOnly renders directly into the displayed buffer.
	FrontOnly BufferMode = iota

	// BackVideo flips between a front and a back buffer.
	BackVideo

	// BackSystem copies updated areas from a system memory back buffer.
	BackSystem

	// Triple rotates through three buffers.
	Triple
)

// String returns the mode name.
func (m BufferMode) String() string {
	switch m {
	case FrontOnly:
		return "FrontOnly"
	case BackVideo:
		return "BackVideo"
	case BackSystem:
		return "BackSystem"
	case Triple:
		return "Triple"
	}
	return fmt.Sprintf("BufferMode(%d)", uint8(m))
}

// PresentMode returns the swap chain present mode closest to m. It is
// used for diagnostics only.
func (m BufferMode) PresentMode() gputypes.PresentMode {
	switch m {
	case FrontOnly:
		return gputypes.PresentModeImmediate
	case Triple:
		return gputypes.PresentModeMailbox
	default:
		return gputypes.PresentModeFifo
	}
}

// swaps reports whether full frame updates exchange buffer roles.
func (m BufferMode) swaps() bool {
	return m == BackVideo || m == Triple
}

// FlipFlags modify a flip request.
type FlipFlags uint8

const (
	// FlipWait waits for the next vertical sync after the flip.
	FlipWait FlipFlags = 1 << iota

	// FlipOnSync performs the flip at the next vertical sync. Copies wait
	// for the sync before they start.
	FlipOnSync

	// FlipSwap exchanges buffer roles even for partial updates.
	FlipSwap

	// FlipBlit copies even for full frame updates.
	FlipBlit

	FlipNone        FlipFlags = 0
	FlipWaitForSync           = FlipWait | FlipOnSync
)

// Rotation is the clockwise rotation of a layer in degrees.
type Rotation int

// Valid reports whether r is a multiple of 90 in [0, 360).
func (r Rotation) Valid() bool {
	return r == 0 || r == 90 || r == 180 || r == 270
}

// Size returns the logical size of a w by h surface shown with r.
func (r Rotation) Size(w, h int) (int, int) {
	if r == 90 || r == 270 {
		return h, w
	}
	return w, h
}

// Unrotate maps rect from the logical coordinates of a layer rotated by r
// to the coordinates of the w by h surface it shows.
func (r Rotation) Unrotate(rect image.Rectangle, w, h int) image.Rectangle {
	switch r {
	case 90:
		return image.Rect(rect.Min.Y, h-rect.Max.X, rect.Max.Y, h-rect.Min.X)
	case 180:
		return image.Rect(w-rect.Max.X, h-rect.Max.Y, w-rect.Min.X, h-rect.Min.Y)
	case 270:
		return image.Rect(w-rect.Max.Y, rect.Min.X, w-rect.Min.Y, rect.Max.X)
	}
	return rect
}

// Update is the changed area of each eye in surface coordinates. An empty
// rectangle stands for the whole surface.
type Update struct {
	Left  image.Rectangle
	Right image.Rectangle
}
