package pool

import (
	"context"
	"image"

	"github.com/deniskropp/DirectFB-sub015/pixel"
)

// Description is what a backend reports from Init.
type Description struct {
	// Name is the backend name used in logs and statistics.
	Name string

	// Kind is the memory kind of every allocation in the pool.
	Kind MemoryKind

	// CPU, GPU and Layers are the access rights granted to each accessor
	// class. A zero value means the accessor cannot lock allocations at all.
	CPU    Access
	GPU    Access
	Layers Access

	// Capacity is the total size in bytes, or 0 when unbounded.
	Capacity int64
}

// Rights returns the access rights granted to accessor a.
func (d Description) Rights(a Accessor) Access {
	switch {
	case a == AccessorCPU:
		return d.CPU
	case a == AccessorGPU:
		return d.GPU
	default:
		return d.Layers
	}
}

// Config describes the storage an allocation must provide.
type Config struct {
	Width  int
	Height int
	Format pixel.Format
}

// Size returns the byte size of a tightly pitched buffer for c.
func (c Config) Size() int {
	return c.Format.Size(c.Width, c.Height)
}

// Backend is the platform memory backend behind a Pool.
//
// Backends are not expected to count references or lock nesting; Pool does
// that before calling into them. Backends must be safe for concurrent use.
type Backend interface {
	// Init prepares the backend and describes it.
	Init(ctx context.Context) (Description, error)

	// TestConfig reports whether the backend can hold cfg.
	// It returns ErrUnsupported when it cannot, ErrOutOfMemory when it
	// could but currently has no room.
	TestConfig(cfg Config) error

	// Allocate reserves storage for a. The backend fills in a.Pitch,
	// a.Size, a.Offset and may stash private state in a.Private.
	Allocate(a *Allocation) error

	// Deallocate returns the storage of a.
	Deallocate(a *Allocation) error

	// Lock maps a for the accessor and returns the mapping.
	Lock(a *Allocation, accessor Accessor, access Access) (Mapping, error)

	// Unlock ends a mapping returned by Lock.
	Unlock(a *Allocation, accessor Accessor, access Access) error

	// Read copies rect r of a into dst, rows dstPitch bytes apart.
	Read(a *Allocation, dst []byte, dstPitch int, r image.Rectangle) error

	// Write copies rect r from src, rows srcPitch bytes apart, into a.
	Write(a *Allocation, src []byte, srcPitch int, r image.Rectangle) error

	// Close releases the backend.
	Close() error
}

// Mapping is the result of a backend lock.
type Mapping struct {
	// Mem is the addressable memory of the allocation.
	Mem []byte

	// Pitch is the byte distance between rows of Mem.
	Pitch int

	// Handle is backend specific: a file descriptor for shared memory,
	// a texture for accelerator memory. May be nil.
	Handle any
}

// CopyRows copies r between two pitched buffers of the same format.
// Backends use it to implement Read and Write.
func CopyRows(dst []byte, dstPitch int, src []byte, srcPitch int, f pixel.Format, r image.Rectangle) {
	bpp := f.BytesPerPixel()
	n := r.Dx() * bpp
	for y := r.Min.Y; y < r.Max.Y; y++ {
		d := y*dstPitch + r.Min.X*bpp
		s := y*srcPitch + r.Min.X*bpp
		copy(dst[d:d+n], src[s:s+n])
	}
}
