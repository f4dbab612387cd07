// Package surface implements drawable surfaces and the buffer consistency
// manager.
//
// A Surface owns a set of Buffers playing the front, back, idle and depth
// roles. Each Buffer may keep its content in system memory, accelerator
// memory or both; the Manager decides which storage instance serves a lock
// and copies content between instances only when a reader would otherwise
// observe stale data.
package surface

import (
	"image"
	"sync/atomic"

	"github.com/deniskropp/DirectFB-sub015/pixel"
)

// Config describes a surface to create.
type Config struct {
	Width  int
	Height int
	Format pixel.Format
	Caps   Caps

	// Policy applies to every buffer unless Caps force one.
	Policy Policy

	// Palette is copied for indexed formats. A gray ramp is used if nil.
	Palette *pixel.Palette
}

// Listener receives surface events. It is called without the manager lock
// held and may call back into the manager.
type Listener func(s *Surface, e Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Surface is a drawable with one to three color buffers and an optional
// depth buffer.
//
// Layout fields are guarded by the manager lock.
type Surface struct {
	mgr *Manager
	id  uint64

	width   int
	height  int
	format  pixel.Format
	caps    Caps
	policy  Policy
	palette *pixel.Palette

	// roles maps RoleFront, RoleBack, RoleIdle to buffers. They alias one
	// another when the surface has fewer than three buffers.
	roles   [3]*Buffer
	depth   *Buffer
	buffers []*Buffer

	listeners []listenerEntry
	nextLID   uint64

	flips     atomic.Uint64
	destroyed bool
}

// ID returns a manager-unique identifier.
func (s *Surface) ID() uint64 { return s.id }

// Manager returns the owning manager.
func (s *Surface) Manager() *Manager { return s.mgr }

// Size returns the surface dimensions.
func (s *Surface) Size() (width, height int) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.width, s.height
}

// Bounds returns the surface rectangle anchored at the origin.
func (s *Surface) Bounds() image.Rectangle {
	w, h := s.Size()
	return image.Rect(0, 0, w, h)
}

// Format returns the pixel format.
func (s *Surface) Format() pixel.Format { return s.format }

// Caps returns the surface capabilities.
func (s *Surface) Caps() Caps { return s.caps }

// Palette returns a copy of the palette, or nil for direct color formats.
func (s *Surface) Palette() *pixel.Palette {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.palette.Clone()
}

// Flips returns the number of completed flips.
func (s *Surface) Flips() uint64 { return s.flips.Load() }

// Buffer returns the buffer currently playing role r.
func (s *Surface) Buffer(r Role) *Buffer {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.buffer(r)
}

func (s *Surface) buffer(r Role) *Buffer {
	s.mustBeAlive()
	if r == RoleDepth {
		return s.depth
	}
	if int(r) >= len(s.roles) {
		panic("BUG: surface: invalid buffer role")
	}
	return s.roles[r]
}

// NumBuffers returns the number of distinct color buffers.
func (s *Surface) NumBuffers() int {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	n := len(s.buffers)
	if s.depth != nil {
		n--
	}
	return n
}

// Destroyed reports whether Destroy was called.
func (s *Surface) Destroyed() bool {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.destroyed
}

func (s *Surface) mustBeAlive() {
	if s.destroyed {
		panic("BUG: surface: use after destroy")
	}
}

// AddListener registers fn and returns an id for RemoveListener.
func (s *Surface) AddListener(fn Listener) uint64 {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.nextLID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextLID, fn: fn})
	return s.nextLID
}

// RemoveListener unregisters the listener with the given id.
func (s *Surface) RemoveListener(id uint64) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// snapshotListeners must be called with the manager lock held.
func (s *Surface) snapshotListeners() []Listener {
	fns := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	return fns
}

func (s *Surface) notify(fns []Listener, e Event) {
	for _, fn := range fns {
		fn(s, e)
	}
}
