//go:build linux

package shm

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/deniskropp/DirectFB-sub015/pool"
)

func init() {
	pool.Register(Name, func() pool.Backend { return New(0) })
}

// segment is the backend private state of one allocation.
type segment struct {
	fd   int
	data []byte
}

// Backend allocates every buffer in its own memfd.
type Backend struct {
	budget int64

	mu   sync.Mutex
	used int64
	segs map[*pool.Allocation]*segment
}

// New returns a shared memory backend limited to budget bytes.
// A budget of 0 means unbounded.
func New(budget int64) *Backend {
	return &Backend{budget: budget, segs: make(map[*pool.Allocation]*segment)}
}

// Init implements pool.Backend.
func (b *Backend) Init(context.Context) (pool.Description, error) {
	return pool.Description{
		Name:     Name,
		Kind:     pool.KindSystem,
		CPU:      pool.AccessReadWrite | pool.AccessShared,
		Layers:   pool.AccessRead | pool.AccessShared,
		Capacity: b.budget,
	}, nil
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
		return pool.ErrOutOfMemory
	}
	return nil
}

// Allocate implements pool.Backend.
func (b *Backend) Allocate(a *pool.Allocation) error {
	cfg := a.Config()
	size := cfg.Size()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budget > 0 && b.used+int64(size) > b.budget {
		return pool.ErrOutOfMemory
	}

	fd, err := unix.MemfdCreate("fbcore-surface", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("shm: ftruncate: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS,
		unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_SEAL); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("shm: seal: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("shm: mmap: %w", err)
	}

	seg := &segment{fd: fd, data: data}
	b.segs[a] = seg
	b.used += int64(size)

	a.Pitch = cfg.Format.Pitch(cfg.Width)
	a.Size = size
	a.Private = seg
	return nil
}

// Deallocate implements pool.Backend.
func (b *Backend) Deallocate(a *pool.Allocation) error {
	b.mu.Lock()
	seg, ok := b.segs[a]
	delete(b.segs, a)
	if ok {
		b.used -= int64(a.Size)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("shm: %s not allocated here", a)
	}
	a.Private = nil
	return seg.close()
}

func (s *segment) close() error {
	var err error
	if s.data != nil {
		err = unix.Munmap(s.data)
		s.data = nil
	}
	if s.fd >= 0 {
		if cerr := unix.Close(s.fd); err == nil {
			err = cerr
		}
		s.fd = -1
	}
	return err
}

// Lock implements pool.Backend. The mapping handle is the file descriptor.
func (b *Backend) Lock(a *pool.Allocation, _ pool.Accessor, _ pool.Access) (pool.Mapping, error) {
	seg, ok := a.Private.(*segment)
	if !ok || seg.data == nil {
		return pool.Mapping{}, fmt.Errorf("shm: %s has no segment", a)
	}
	return pool.Mapping{Mem: seg.data, Pitch: a.Pitch, Handle: seg.fd}, nil
}

// Unlock implements pool.Backend.
func (b *Backend) Unlock(*pool.Allocation, pool.Accessor, pool.Access) error {
	return nil
}

// Read implements pool.Backend.
func (b *Backend) Read(a *pool.Allocation, dst []byte, dstPitch int, r image.Rectangle) error {
	seg, ok := a.Private.(*segment)
	if !ok {
		return fmt.Errorf("shm: %s has no segment", a)
	}
	pool.CopyRows(dst, dstPitch, seg.data, a.Pitch, a.Config().Format, r)
	return nil
}

// Write implements pool.Backend.
func (b *Backend) Write(a *pool.Allocation, src []byte, srcPitch int, r image.Rectangle) error {
	seg, ok := a.Private.(*segment)
	if !ok {
		return fmt.Errorf("shm: %s has no segment", a)
	}
	pool.CopyRows(seg.data, a.Pitch, src, srcPitch, a.Config().Format, r)
	return nil
}

// Close unmaps every remaining segment.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for a, seg := range b.segs {
		if err := seg.close(); err != nil && first == nil {
			first = err
		}
		delete(b.segs, a)
	}
	b.used = 0
	return first
}
