package pool

import (
	"fmt"
	"sync/atomic"
)

// Allocation is one physical storage instance of a surface buffer inside
// a pool.
//
// Allocations are never referenced directly by their users; every user
// holds a *Handle. The storage is returned to the backend when the last
// handle is released.
type Allocation struct {
	pool   *Pool
	id     uint64
	config Config

	// Filled in by the backend during Allocate.
	Offset  int
	Pitch   int
	Size    int
	Private any

	refs  atomic.Int32
	locks atomic.Int32
	freed atomic.Bool
}

// ID returns a pool-unique identifier.
func (a *Allocation) ID() uint64 { return a.id }

// Pool returns the owning pool.
func (a *Allocation) Pool() *Pool { return a.pool }

// Config returns the configuration the allocation was made for.
func (a *Allocation) Config() Config { return a.config }

// Refs returns the number of live handles.
func (a *Allocation) Refs() int { return int(a.refs.Load()) }

// Locks returns the number of outstanding locks.
func (a *Allocation) Locks() int { return int(a.locks.Load()) }

// String implements fmt.Stringer.
func (a *Allocation) String() string {
	return fmt.Sprintf("%s#%d(%dx%d %s)", a.pool.Name(), a.id,
		a.config.Width, a.config.Height, a.config.Format)
}

// Handle is an owned reference to an Allocation.
//
// A handle is obtained from Pool.Allocate or Handle.Clone and must be
// released exactly once. Copying the *Handle pointer does not add a
// reference; use Clone for that.
type Handle struct {
	alloc    *Allocation
	released atomic.Bool
}

func newHandle(a *Allocation) *Handle {
	a.refs.Add(1)
	return &Handle{alloc: a}
}

// Allocation returns the referenced allocation.
// It panics when called on a released handle.
func (h *Handle) Allocation() *Allocation {
	if h.released.Load() {
		panic("BUG: pool: use of released allocation handle")
	}
	return h.alloc
}

// Clone returns a new handle to the same allocation, adding a reference.
func (h *Handle) Clone() *Handle {
	return newHandle(h.Allocation())
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Release drops the reference. When it was the last one the storage is
// returned to the backend. Releasing the same handle twice panics.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		panic("BUG: pool: allocation handle released twice")
	}
	a := h.alloc
	if n := a.refs.Add(-1); n == 0 {
		a.pool.free(a)
	} else if n < 0 {
		panic("BUG: pool: allocation reference count underflow")
	}
}
