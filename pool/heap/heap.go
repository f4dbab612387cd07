// Package heap provides a system memory pool backend on the Go heap.
//
// It is always available and registers itself as "heap". Allocations can
// be read and written by the CPU and scanned out by display layers, but
// never accessed by the accelerator directly.
package heap

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Name is the registry name of the backend.
const Name = "heap"

func init() {
	pool.Register(Name, func() pool.Backend { return New(0) })
}

// Backend keeps allocations in ordinary byte slices.
type Backend struct {
	budget int64

	mu   sync.Mutex
	used int64
}

// New returns a heap backend limited to budget bytes.
// A budget of 0 means unbounded.
func New(budget int64) *Backend {
	return &Backend{budget: budget}
}

// Init implements pool.Backend.
func (b *Backend) Init(context.Context) (pool.Description, error) {
	return pool.Description{
		Name:     Name,
		Kind:     pool.KindSystem,
		CPU:      pool.AccessReadWrite | pool.AccessShared,
		Layers:   pool.AccessRead,
		Capacity: b.budget,
	}, nil
}

// Used returns the number of bytes currently allocated.
func (b *Backend) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// TestConfig implements pool.Backend.
func (b *Backend) TestConfig(cfg pool.Config) error {
	if !cfg.Format.IsValid() || cfg.Width <= 0 || cfg.Height <= 0 {
		return pool.ErrUnsupported
	}
	if b.budget == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+int64(cfg.Size()) > b.budget {
		return fmt.Errorf("%w: need %d, have %d", pool.ErrOutOfMemory, cfg.Size(), b.budget-b.used)
	}
	return nil
}

// Allocate implements pool.Backend.
func (b *Backend) Allocate(a *pool.Allocation) error {
	cfg := a.Config()
	size := cfg.Size()

	b.mu.Lock()
	if b.budget > 0 && b.used+int64(size) > b.budget {
		b.mu.Unlock()
		return pool.ErrOutOfMemory
	}
	b.used += int64(size)
	b.mu.Unlock()

	a.Pitch = cfg.Format.Pitch(cfg.Width)
	a.Size = size
	a.Offset = 0
	a.Private = make([]byte, size)
	return nil
}

// Deallocate implements pool.Backend.
func (b *Backend) Deallocate(a *pool.Allocation) error {
	b.mu.Lock()
	b.used -= int64(a.Size)
	b.mu.Unlock()
	a.Private = nil
	return nil
}

// Lock implements pool.Backend.
func (b *Backend) Lock(a *pool.Allocation, _ pool.Accessor, _ pool.Access) (pool.Mapping, error) {
	mem, ok := a.Private.([]byte)
	if !ok {
		return pool.Mapping{}, fmt.Errorf("heap: %s has no storage", a)
	}
	return pool.Mapping{Mem: mem, Pitch: a.Pitch}, nil
}

// Unlock implements pool.Backend.
func (b *Backend) Unlock(*pool.Allocation, pool.Accessor, pool.Access) error {
	return nil
}

// Read implements pool.Backend.
func (b *Backend) Read(a *pool.Allocation, dst []byte, dstPitch int, r image.Rectangle) error {
	mem, _ := a.Private.([]byte)
	pool.CopyRows(dst, dstPitch, mem, a.Pitch, a.Config().Format, r)
	return nil
}

// Write implements pool.Backend.
func (b *Backend) Write(a *pool.Allocation, src []byte, srcPitch int, r image.Rectangle) error {
	mem, _ := a.Private.([]byte)
	pool.CopyRows(mem, a.Pitch, src, srcPitch, a.Config().Format, r)
	return nil
}

// Close implements pool.Backend.
func (b *Backend) Close() error { return nil }
