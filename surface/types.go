package surface

import (
	"errors"
	"fmt"
)

// Surface errors.
var (
	// ErrUnsupported is returned when a buffer cannot be accessed the way
	// the caller asked, e.g. a hardware lock on system-only storage.
	ErrUnsupported = errors.New("surface: access not supported by buffer policy")

	// ErrLocked is returned when an operation needs every buffer unlocked.
	ErrLocked = errors.New("surface: buffer is locked")

	// ErrInvalidConfig is returned for zero sizes or unknown formats.
	ErrInvalidConfig = errors.New("surface: invalid configuration")

	// ErrNoPool is returned when the pool a policy needs is not configured.
	ErrNoPool = errors.New("surface: no memory pool for policy")

	// ErrReleased is returned when a buffer is used after Resize or
	// Destroy released its storage.
	ErrReleased = errors.New("surface: buffer released")
)

// Policy selects where the storage of a buffer lives.
type Policy uint8

const (
	// PolicySystemOnly keeps the buffer in system memory only.
	PolicySystemOnly Policy = iota

	// PolicyVideoLow keeps the buffer in system memory and creates an
	// accelerator copy on demand. Software access prefers system memory.
	PolicyVideoLow

	// PolicyVideoHigh is like PolicyVideoLow but software access prefers
	// the accelerator copy once it exists.
	PolicyVideoHigh

	// PolicyVideoOnly keeps the buffer in accelerator memory only.
	PolicyVideoOnly

	policyCount
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicySystemOnly:
		return "SystemOnly"
	case PolicyVideoLow:
		return "VideoLow"
	case PolicyVideoHigh:
		return "VideoHigh"
	case PolicyVideoOnly:
		return "VideoOnly"
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

func (p Policy) mustValidate() {
	if p >= policyCount {
		panic(fmt.Sprintf("BUG: surface: invalid policy %d", uint8(p)))
	}
}

// Health is the coherency state of one storage instance.
type Health uint8

const (
	// HealthInvalid means the instance holds no meaningful content.
	HealthInvalid Health = iota

	// HealthToRestore means the other instance was written since this one
	// was last brought up to date.
	HealthToRestore

	// HealthStored means the instance content is authoritative.
	HealthStored
)

// String returns the health name.
func (h Health) String() string {
	switch h {
	case HealthInvalid:
		return "Invalid"
	case HealthToRestore:
		return "ToRestore"
	case HealthStored:
		return "Stored"
	}
	return fmt.Sprintf("Health(%d)", uint8(h))
}

// BufferFlags describe a buffer.
type BufferFlags uint8

const (
	// FlagForeignMemory marks storage the manager did not allocate.
	FlagForeignMemory BufferFlags = 1 << iota

	// FlagWritten is set once any instance was locked for writing.
	FlagWritten
)

// Caps are surface capabilities.
type Caps uint16

const (
	// CapsFlipping gives the surface a separate back buffer.
	CapsFlipping Caps = 1 << iota

	// CapsTriple gives the surface a third, idle buffer. Implies CapsFlipping.
	CapsTriple

	// CapsDepth gives the surface a depth buffer.
	CapsDepth

	// CapsSystemOnly forces PolicySystemOnly on every buffer.
	CapsSystemOnly

	// CapsVideoOnly forces PolicyVideoOnly on every buffer.
	CapsVideoOnly
)

// Has reports whether c contains every capability in want.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

// Role names one of the buffers of a surface.
type Role uint8

const (
	RoleFront Role = iota
	RoleBack
	RoleIdle
	RoleDepth
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleFront:
		return "front"
	case RoleBack:
		return "back"
	case RoleIdle:
		return "idle"
	case RoleDepth:
		return "depth"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Event is delivered to surface listeners.
type Event uint8

const (
	// EventDestroy is sent before the buffers of a surface are released.
	EventDestroy Event = iota + 1

	// EventFlip is sent after the buffer roles were exchanged.
	EventFlip

	// EventPalette is sent after the palette changed.
	EventPalette

	// EventResize is sent after every buffer was reallocated.
	EventResize
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventDestroy:
		return "destroy"
	case EventFlip:
		return "flip"
	case EventPalette:
		return "palette"
	case EventResize:
		return "resize"
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}
