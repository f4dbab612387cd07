// Package pool manages the physical storage of surface buffers.
//
// A Pool wraps a Backend (system heap, shared memory, accelerator memory)
// and hands out Allocations through owned Handles. An Allocation lives
// until its last Handle is released; deallocating it while other Handles
// exist fails with ErrInUse. Lock and Unlock calls are keyed by Accessor
// and must be paired.
package pool

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	fbcore "github.com/deniskropp/DirectFB-sub015"
)

// Pool errors.
var (
	// ErrOutOfMemory is returned by backends that have no room left.
	// Pool translates it to ErrNoSystemMemory or ErrNoVideoMemory.
	ErrOutOfMemory = errors.New("pool: out of memory")

	// ErrNoSystemMemory is returned when a system memory pool is exhausted.
	ErrNoSystemMemory = errors.New("pool: out of system memory")

	// ErrNoVideoMemory is returned when an accelerator memory pool is exhausted.
	ErrNoVideoMemory = errors.New("pool: out of accelerator memory")

	// ErrUnsupported is returned when a pool cannot hold a configuration.
	ErrUnsupported = errors.New("pool: configuration not supported")

	// ErrInUse is returned when deallocating storage that other handles
	// still reference.
	ErrInUse = errors.New("pool: allocation still referenced")

	// ErrLocked is returned when deallocating storage that is locked.
	ErrLocked = errors.New("pool: allocation is locked")

	// ErrAccessDenied is returned when an accessor lacks the requested rights.
	ErrAccessDenied = errors.New("pool: access denied")

	// ErrNotLocked is returned by Unlock for a lock that is not active.
	ErrNotLocked = errors.New("pool: allocation not locked")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pool: closed")
)

// Stats is a snapshot of pool usage.
type Stats struct {
	Allocations int
	BytesInUse  int64
	Allocated   uint64
	Freed       uint64
	Refused     uint64
	Locks       uint64
}

// Pool wraps a Backend with reference counting, lock accounting and
// access control.
//
// Pool is safe for concurrent use.
type Pool struct {
	backend Backend
	desc    Description

	nextID atomic.Uint64
	closed atomic.Bool

	mu     sync.Mutex
	allocs map[*Allocation]struct{}
	stats  Stats
}

// New initializes backend and returns a pool around it.
func New(ctx context.Context, backend Backend) (*Pool, error) {
	desc, err := backend.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: init: %w", err)
	}
	fbcore.Logger().Info("pool initialized",
		"pool", desc.Name, "kind", desc.Kind, "capacity", desc.Capacity)
	return &Pool{
		backend: backend,
		desc:    desc,
		allocs:  make(map[*Allocation]struct{}),
	}, nil
}

// Name returns the backend name.
func (p *Pool) Name() string { return p.desc.Name }

// Kind returns the memory kind of the pool.
func (p *Pool) Kind() MemoryKind { return p.desc.Kind }

// Description returns what the backend reported from Init.
func (p *Pool) Description() Description { return p.desc }

// Backend returns the underlying backend.
func (p *Pool) Backend() Backend { return p.backend }

// TestConfig reports whether the pool can hold cfg.
func (p *Pool) TestConfig(cfg Config) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.translate(p.backend.TestConfig(cfg))
}

// Allocate reserves storage for cfg and returns the first handle to it.
// Exhaustion is reported as ErrNoSystemMemory or ErrNoVideoMemory
// depending on the pool kind.
func (p *Pool) Allocate(cfg Config) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := p.TestConfig(cfg); err != nil {
		return nil, err
	}
	a := &Allocation{pool: p, id: p.nextID.Add(1), config: cfg}
	if err := p.backend.Allocate(a); err != nil {
		return nil, p.translate(err)
	}

	p.mu.Lock()
	p.allocs[a] = struct{}{}
	p.stats.Allocations++
	p.stats.Allocated++
	p.stats.BytesInUse += int64(a.Size)
	p.mu.Unlock()

	fbcore.Logger().Debug("allocation created", "alloc", a.String(), "size", a.Size)
	return newHandle(a), nil
}

// Deallocate releases h and returns the storage immediately.
// It is refused with ErrInUse while other handles reference the storage
// and with ErrLocked while it is locked; h stays valid in both cases.
func (p *Pool) Deallocate(h *Handle) error {
	a := h.Allocation()
	if a.pool != p {
		return fmt.Errorf("pool: %s does not own %s", p.Name(), a)
	}
	if a.Locks() > 0 {
		p.refuse()
		return fmt.Errorf("%w: %s has %d locks", ErrLocked, a, a.Locks())
	}
	if a.Refs() > 1 {
		p.refuse()
		return fmt.Errorf("%w: %s has %d references", ErrInUse, a, a.Refs())
	}
	h.Release()
	return nil
}

func (p *Pool) refuse() {
	p.mu.Lock()
	p.stats.Refused++
	p.mu.Unlock()
}

// free is called when the last handle is released.
func (p *Pool) free(a *Allocation) {
	if !a.freed.CompareAndSwap(false, true) {
		return
	}
	if n := a.Locks(); n > 0 {
		panic(fmt.Sprintf("BUG: pool: %s freed with %d locks held", a, n))
	}
	if err := p.backend.Deallocate(a); err != nil {
		fbcore.Logger().Warn("deallocation failed", "alloc", a.String(), "err", err)
	}

	p.mu.Lock()
	delete(p.allocs, a)
	p.stats.Allocations--
	p.stats.Freed++
	p.stats.BytesInUse -= int64(a.Size)
	p.mu.Unlock()

	fbcore.Logger().Debug("allocation freed", "alloc", a.String())
}

// Lock is an active mapping of an allocation.
type Lock struct {
	Mapping

	Allocation *Allocation
	Accessor   Accessor
	Access     Access

	active atomic.Bool
}

// Lock maps the allocation behind h for accessor with the given rights.
// Every successful Lock must be paired with Unlock.
func (p *Pool) Lock(h *Handle, accessor Accessor, access Access) (*Lock, error) {
	a := h.Allocation()
	if !p.desc.Rights(accessor).Has(access &^ AccessShared) {
		return nil, fmt.Errorf("%w: %s wants %s on %s", ErrAccessDenied, accessor, access, p.Name())
	}
	m, err := p.backend.Lock(a, accessor, access)
	if err != nil {
		return nil, fmt.Errorf("pool: lock %s: %w", a, err)
	}
	a.locks.Add(1)

	p.mu.Lock()
	p.stats.Locks++
	p.mu.Unlock()

	l := &Lock{Mapping: m, Allocation: a, Accessor: accessor, Access: access}
	l.active.Store(true)
	return l, nil
}

// Unlock ends l.
func (p *Pool) Unlock(l *Lock) error {
	if l == nil || !l.active.CompareAndSwap(true, false) {
		return ErrNotLocked
	}
	err := p.backend.Unlock(l.Allocation, l.Accessor, l.Access)
	l.Allocation.locks.Add(-1)
	return err
}

// Read copies rect r of the allocation into dst.
func (p *Pool) Read(h *Handle, dst []byte, dstPitch int, r image.Rectangle) error {
	a := h.Allocation()
	return p.backend.Read(a, dst, dstPitch, r.Intersect(bounds(a)))
}

// Write copies rect r from src into the allocation.
func (p *Pool) Write(h *Handle, src []byte, srcPitch int, r image.Rectangle) error {
	a := h.Allocation()
	return p.backend.Write(a, src, srcPitch, r.Intersect(bounds(a)))
}

func bounds(a *Allocation) image.Rectangle {
	return image.Rect(0, 0, a.config.Width, a.config.Height)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close closes the backend. Outstanding allocations are reported and
// left to the backend to reclaim.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	n := len(p.allocs)
	p.mu.Unlock()
	if n > 0 {
		fbcore.Logger().Warn("pool closed with live allocations", "pool", p.Name(), "count", n)
	}
	return p.backend.Close()
}

func (p *Pool) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOutOfMemory) {
		if p.desc.Kind == KindVideo {
			return fmt.Errorf("%w: %s", ErrNoVideoMemory, p.Name())
		}
		return fmt.Errorf("%w: %s", ErrNoSystemMemory, p.Name())
	}
	return err
}
