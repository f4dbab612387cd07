package surface

import (
	"fmt"
	"image"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Lock is an active lock on one storage instance of a buffer.
type Lock struct {
	Buffer   *Buffer
	Kind     pool.MemoryKind
	Accessor pool.Accessor
	Access   pool.Access

	// Mem and Pitch address the locked pixels.
	Mem   []byte
	Pitch int

	// Handle is the pool specific mapping handle.
	Handle any

	width   int
	height  int
	palette *pixel.Palette
	inst    *instance
	plock   *pool.Lock
}

// Bounds returns the locked buffer rectangle.
func (l *Lock) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.width, l.height)
}

// Image returns a draw.Image view of the locked pixels.
func (l *Lock) Image() *pixel.Image {
	return pixel.NewImage(l.Mem, l.Pitch, l.Buffer.format, l.width, l.height, l.palette)
}

// SoftwareLock locks the buffer playing role for CPU access.
//
// VideoLow buffers are served from system memory; a read-only lock uses an
// up to date accelerator instance directly when the system instance is
// stale. VideoHigh buffers are served from the accelerator instance once it
// exists. A write lock marks the other instance ToRestore.
func (m *Manager) SoftwareLock(s *Surface, role Role, access pool.Access) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.lockable(s, role)
	if err != nil {
		return nil, err
	}
	return m.softwareLock(b, access)
}

// SoftwareLockBuffer is SoftwareLock for a buffer resolved earlier, such as
// the destination of a recorded command stream. It fails with ErrReleased
// once Resize or Destroy released the buffer.
func (m *Manager) SoftwareLockBuffer(b *Buffer, access pool.Access) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.released() {
		return nil, ErrReleased
	}
	return m.softwareLock(b, access)
}

func (m *Manager) softwareLock(b *Buffer, access pool.Access) (*Lock, error) {
	var in *instance
	switch b.policy {
	case PolicySystemOnly:
		in = b.system
	case PolicyVideoOnly:
		in = b.video
	case PolicyVideoLow:
		in = b.system
		if !access.Has(pool.AccessWrite) && in.health != HealthStored &&
			b.video != nil && b.video.health == HealthStored {
			in = b.video
		}
	case PolicyVideoHigh:
		in = b.system
		if b.video != nil {
			in = b.video
		}
	default:
		b.policy.mustValidate()
	}

	if err := m.restore(b, in); err != nil {
		return nil, err
	}
	if in == b.video {
		if err := m.softwareAccess(in, access); err != nil {
			return nil, err
		}
	}
	l, err := m.lockInstance(b, in, pool.AccessorCPU, access)
	if err != nil {
		return nil, err
	}
	m.wrote(b, in, access)
	m.stats.SoftwareLocks++
	return l, nil
}

// HardwareLock locks the buffer playing role for accelerator access.
//
// It fails with ErrUnsupported for SystemOnly buffers. Otherwise the
// accelerator instance is created if needed and brought up to date from
// system memory. A write lock marks the system instance ToRestore.
func (m *Manager) HardwareLock(s *Surface, role Role, access pool.Access) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.lockable(s, role)
	if err != nil {
		return nil, err
	}
	return m.hardwareLock(b, access)
}

// HardwareLockBuffer is HardwareLock for a buffer resolved earlier.
func (m *Manager) HardwareLockBuffer(b *Buffer, access pool.Access) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.released() {
		return nil, ErrReleased
	}
	return m.hardwareLock(b, access)
}

func (m *Manager) hardwareLock(b *Buffer, access pool.Access) (*Lock, error) {
	if b.policy == PolicySystemOnly {
		return nil, ErrUnsupported
	}

	in, err := m.ensureVideo(b)
	if err != nil {
		return nil, err
	}
	if err := m.restore(b, in); err != nil {
		return nil, err
	}
	if err := m.hardwareAccess(in, access); err != nil {
		return nil, err
	}
	l, err := m.lockInstance(b, in, pool.AccessorGPU, access)
	if err != nil {
		return nil, err
	}
	m.wrote(b, in, access)
	m.stats.HardwareLocks++
	return l, nil
}

// Unlock releases l. It never copies content between instances.
func (m *Manager) Unlock(l *Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := l.inst.pool().Unlock(l.plock); err != nil {
		return err
	}
	l.inst.locks--
	return nil
}

// DisplayHandle returns a new reference to the instance display layer
// should scan out for the buffer playing role, after bringing it up to
// date. The caller owns the handle and must release it.
//
// SystemOnly and VideoLow buffers are shown from system memory, VideoHigh
// and VideoOnly buffers from accelerator memory when possible.
func (m *Manager) DisplayHandle(s *Surface, role Role, layer int) (*pool.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.lockable(s, role)
	if err != nil {
		return nil, err
	}

	in := b.system
	switch b.policy {
	case PolicyVideoOnly:
		in = b.video
	case PolicyVideoHigh:
		if v, err := m.ensureVideo(b); err == nil {
			in = v
		}
	}
	if err := m.restore(b, in); err != nil {
		return nil, err
	}
	if in == b.video {
		if err := m.hardwareAccess(in, pool.AccessRead); err != nil {
			return nil, err
		}
	}
	if !in.pool().Description().Rights(pool.Layer(layer)).Has(pool.AccessRead) {
		return nil, fmt.Errorf("%w: layer %d cannot read %s", pool.ErrAccessDenied, layer, in.pool().Name())
	}
	return in.handle.Clone(), nil
}

// BufferHandles returns new references to every storage instance of b.
// Tasks add them to their access list so the storage outlives the buffer.
func (m *Manager) BufferHandles(b *Buffer) ([]*pool.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.released() {
		return nil, ErrReleased
	}
	var hs []*pool.Handle
	for _, in := range []*instance{b.system, b.video} {
		if in != nil {
			hs = append(hs, in.handle.Clone())
		}
	}
	return hs, nil
}

func (m *Manager) lockable(s *Surface, role Role) (*Buffer, error) {
	s.mustBeAlive()
	b := s.buffer(role)
	if b == nil {
		return nil, fmt.Errorf("%w: surface %d has no %s buffer", ErrInvalidConfig, s.id, role)
	}
	return b, nil
}

func (m *Manager) lockInstance(b *Buffer, in *instance, accessor pool.Accessor, access pool.Access) (*Lock, error) {
	pl, err := in.pool().Lock(in.handle, accessor, access)
	if err != nil {
		return nil, err
	}
	in.locks++
	return &Lock{
		Buffer:   b,
		Kind:     in.pool().Kind(),
		Accessor: accessor,
		Access:   access,
		Mem:      pl.Mem,
		Pitch:    pl.Pitch,
		Handle:   pl.Handle,
		width:    b.surface.width,
		height:   b.surface.height,
		palette:  b.surface.palette,
		inst:     in,
		plock:    pl,
	}, nil
}

// wrote updates health after a successful write lock through in.
func (m *Manager) wrote(b *Buffer, in *instance, access pool.Access) {
	if !access.Has(pool.AccessWrite) {
		return
	}
	in.health = HealthStored
	if other := b.other(in); other != nil {
		other.health = HealthToRestore
	}
	b.flags |= FlagWritten
}

// restore brings in up to date by copying from the other instance.
func (m *Manager) restore(b *Buffer, in *instance) error {
	if in.health == HealthStored {
		return nil
	}
	src := b.other(in)
	if src == nil || src.health != HealthStored {
		in.health = HealthStored
		return nil
	}
	if src == b.video {
		if err := m.softwareAccess(src, pool.AccessRead); err != nil {
			return err
		}
	}

	pl, err := src.pool().Lock(src.handle, pool.AccessorCPU, pool.AccessRead)
	if err != nil {
		return fmt.Errorf("surface: restore: %w", err)
	}
	r := image.Rect(0, 0, b.surface.width, b.surface.height)
	werr := in.pool().Write(in.handle, pl.Mem, pl.Pitch, r)
	if err := src.pool().Unlock(pl); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		return fmt.Errorf("surface: restore: %w", werr)
	}

	if in == b.video {
		in.access |= softwareWrite
	}
	in.health = HealthStored
	m.stats.Restores++
	fbcore.Logger().Debug("instance restored",
		"surface", b.surface.id, "to", in.pool().Kind(), "from", src.pool().Kind())
	return nil
}

// softwareAccess waits for the accelerator before the CPU reads what it
// wrote or overwrites what it still reads.
func (m *Manager) softwareAccess(in *instance, access pool.Access) error {
	needSync := in.access&hardwareWrite != 0 ||
		(access.Has(pool.AccessWrite) && in.access&hardwareRead != 0)
	if needSync {
		if err := m.syncer.Sync(); err != nil {
			return fmt.Errorf("surface: sync: %w", err)
		}
		m.stats.Syncs++
		in.access &^= hardwareRead | hardwareWrite
	}
	if access.Has(pool.AccessRead) {
		in.access |= softwareRead
	}
	if access.Has(pool.AccessWrite) {
		in.access |= softwareWrite
	}
	return nil
}

// hardwareAccess flushes CPU caches before the accelerator reads what the
// CPU wrote or overwrites what the CPU read.
func (m *Manager) hardwareAccess(in *instance, access pool.Access) error {
	needFlush := in.access&softwareWrite != 0 ||
		(access.Has(pool.AccessWrite) && in.access&softwareRead != 0)
	if needFlush {
		if err := m.syncer.Flush(); err != nil {
			return fmt.Errorf("surface: flush: %w", err)
		}
		m.stats.Flushes++
		in.access &^= softwareRead | softwareWrite
	}
	if access.Has(pool.AccessRead) {
		in.access |= hardwareRead
	}
	if access.Has(pool.AccessWrite) {
		in.access |= hardwareWrite
	}
	return nil
}
