package surface

import (
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
)

// accessFlags record how an accelerator instance was touched since the
// last flush or sync.
type accessFlags uint8

const (
	softwareRead accessFlags = 1 << iota
	softwareWrite
	hardwareRead
	hardwareWrite
)

// instance is one physical storage instance of a buffer.
type instance struct {
	handle *pool.Handle
	health Health
	locks  int
	access accessFlags
}

func (in *instance) pool() *pool.Pool {
	return in.handle.Allocation().Pool()
}

func (in *instance) release() {
	if in != nil && in.handle != nil {
		in.handle.Release()
		in.handle = nil
	}
}

// Buffer is one renderable instance of a surface (front, back, idle or
// depth). It owns up to two storage instances, one in system memory and one
// in accelerator memory, and tracks which of them holds current content.
//
// All fields are guarded by the manager lock.
type Buffer struct {
	surface *Surface
	policy  Policy
	format  pixel.Format
	flags   BufferFlags

	system *instance
	video  *instance
}

// Surface returns the owning surface.
func (b *Buffer) Surface() *Surface { return b.surface }

// Policy returns the storage policy.
func (b *Buffer) Policy() Policy { return b.policy }

// Format returns the pixel format of the buffer.
func (b *Buffer) Format() pixel.Format { return b.format }

// Flags returns the buffer flags.
func (b *Buffer) Flags() BufferFlags {
	b.surface.mgr.mu.Lock()
	defer b.surface.mgr.mu.Unlock()
	return b.flags
}

// Health returns the health of the instance of the given kind, or
// HealthInvalid if no such instance exists.
func (b *Buffer) Health(kind pool.MemoryKind) Health {
	b.surface.mgr.mu.Lock()
	defer b.surface.mgr.mu.Unlock()
	if in := b.instanceOf(kind); in != nil {
		return in.health
	}
	return HealthInvalid
}

// HasInstance reports whether an instance of the given kind is allocated.
func (b *Buffer) HasInstance(kind pool.MemoryKind) bool {
	b.surface.mgr.mu.Lock()
	defer b.surface.mgr.mu.Unlock()
	return b.instanceOf(kind) != nil
}

func (b *Buffer) instanceOf(kind pool.MemoryKind) *instance {
	if kind == pool.KindVideo {
		return b.video
	}
	return b.system
}

func (b *Buffer) other(in *instance) *instance {
	if in == b.system {
		return b.video
	}
	return b.system
}

func (b *Buffer) locked() bool {
	return (b.system != nil && b.system.locks > 0) || (b.video != nil && b.video.locks > 0)
}

func (b *Buffer) released() bool {
	return b.system == nil && b.video == nil
}

func (b *Buffer) config() pool.Config {
	return pool.Config{Width: b.surface.width, Height: b.surface.height, Format: b.format}
}

func (b *Buffer) release() {
	b.system.release()
	b.video.release()
	b.system, b.video = nil, nil
}
