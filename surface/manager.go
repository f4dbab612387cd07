package surface

import (
	"fmt"
	"sync"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Syncer is the accelerator cache and pipeline control used when software
// and hardware access the same accelerator instance.
type Syncer interface {
	// Flush makes software writes visible to the accelerator.
	Flush() error

	// Sync waits until the accelerator finished all pending work.
	Sync() error
}

type nopSyncer struct{}

func (nopSyncer) Flush() error { return nil }
func (nopSyncer) Sync() error  { return nil }

// Stats counts consistency manager activity.
type Stats struct {
	Surfaces      int
	Flushes       uint64
	Syncs         uint64
	Restores      uint64
	SoftwareLocks uint64
	HardwareLocks uint64
	Flips         uint64
	Unflips       uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSystemPool sets the pool for system memory instances.
func WithSystemPool(p *pool.Pool) ManagerOption {
	return func(m *Manager) { m.system = p }
}

// WithVideoPool sets the pool for accelerator memory instances.
func WithVideoPool(p *pool.Pool) ManagerOption {
	return func(m *Manager) { m.video = p }
}

// WithSyncer sets the accelerator flush and sync hooks.
func WithSyncer(s Syncer) ManagerOption {
	return func(m *Manager) {
		if s != nil {
			m.syncer = s
		}
	}
}

// Manager keeps the buffers of its surfaces coherent across memory pools.
//
// Every layout change and every lock bookkeeping step happens under one
// mutex. Manager is safe for concurrent use.
type Manager struct {
	system *pool.Pool
	video  *pool.Pool
	syncer Syncer

	mu       sync.Mutex
	surfaces map[*Surface]struct{}
	nextID   uint64
	stats    Stats
}

// NewManager creates a manager. A system pool is required.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		syncer:   nopSyncer{},
		surfaces: make(map[*Surface]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.system == nil {
		return nil, fmt.Errorf("%w: system pool required", ErrNoPool)
	}
	if m.system.Kind() != pool.KindSystem {
		return nil, fmt.Errorf("surface: system pool %s is %s memory", m.system.Name(), m.system.Kind())
	}
	if m.video != nil && m.video.Kind() != pool.KindVideo {
		return nil, fmt.Errorf("surface: video pool %s is %s memory", m.video.Name(), m.video.Kind())
	}
	return m, nil
}

// SystemPool returns the system memory pool.
func (m *Manager) SystemPool() *pool.Pool { return m.system }

// VideoPool returns the accelerator memory pool, or nil.
func (m *Manager) VideoPool() *pool.Pool { return m.video }

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	st.Surfaces = len(m.surfaces)
	return st
}

// CreateSurface allocates a surface and its buffers.
func (m *Manager) CreateSurface(cfg Config) (*Surface, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || !cfg.Format.IsValid() {
		return nil, fmt.Errorf("%w: %dx%d %s", ErrInvalidConfig, cfg.Width, cfg.Height, cfg.Format)
	}
	cfg.Policy.mustValidate()

	caps := cfg.Caps
	if caps.Has(CapsTriple) {
		caps |= CapsFlipping
	}
	policy := cfg.Policy
	switch {
	case caps.Has(CapsSystemOnly):
		policy = PolicySystemOnly
	case caps.Has(CapsVideoOnly):
		policy = PolicyVideoOnly
	}

	s := &Surface{
		mgr:    m,
		width:  cfg.Width,
		height: cfg.Height,
		format: cfg.Format,
		caps:   caps,
		policy: policy,
	}
	if cfg.Format.IsIndexed() {
		if cfg.Palette != nil {
			s.palette = cfg.Palette.Clone()
		} else {
			s.palette = pixel.NewPalette(256)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.allocateRoles(s); err != nil {
		return nil, err
	}
	m.nextID++
	s.id = m.nextID
	m.surfaces[s] = struct{}{}

	fbcore.Logger().Debug("surface created",
		"surface", s.id, "size", fmt.Sprintf("%dx%d", s.width, s.height),
		"format", s.format, "buffers", len(s.buffers), "policy", policy)
	return s, nil
}

// allocateRoles creates every buffer of s. On failure nothing is kept.
func (m *Manager) allocateRoles(s *Surface) error {
	n := 1
	switch {
	case s.caps.Has(CapsTriple):
		n = 3
	case s.caps.Has(CapsFlipping):
		n = 2
	}

	var buffers []*Buffer
	fail := func(err error) error {
		for _, b := range buffers {
			b.release()
		}
		return err
	}
	for range n {
		b, err := m.allocateBuffer(s, s.policy, s.format)
		if err != nil {
			return fail(err)
		}
		buffers = append(buffers, b)
	}
	var depth *Buffer
	if s.caps.Has(CapsDepth) {
		d, err := m.allocateBuffer(s, s.policy, pixel.FormatRGB16)
		if err != nil {
			return fail(err)
		}
		depth = d
		buffers = append(buffers, d)
	}

	s.roles[RoleFront] = buffers[0]
	s.roles[RoleBack] = buffers[min(1, n-1)]
	s.roles[RoleIdle] = buffers[0]
	if n == 3 {
		s.roles[RoleIdle] = buffers[2]
	}
	s.depth = depth
	s.buffers = buffers
	return nil
}

// AllocateBuffer creates a buffer for s with the given policy and format.
// SystemOnly buffers get only a system instance and VideoOnly buffers only
// an accelerator instance. VideoLow and VideoHigh buffers get a system
// instance now and an accelerator instance on first hardware use.
//
// The buffer is not attached to any role of s.
func (m *Manager) AllocateBuffer(s *Surface, policy Policy, format pixel.Format) (*Buffer, error) {
	policy.mustValidate()
	m.mu.Lock()
	defer m.mu.Unlock()
	s.mustBeAlive()
	return m.allocateBuffer(s, policy, format)
}

func (m *Manager) allocateBuffer(s *Surface, policy Policy, format pixel.Format) (*Buffer, error) {
	b := &Buffer{surface: s, policy: policy, format: format}
	cfg := b.config()

	switch policy {
	case PolicyVideoOnly:
		if m.video == nil {
			return nil, fmt.Errorf("%w: %w", pool.ErrNoVideoMemory, ErrNoPool)
		}
		h, err := m.video.Allocate(cfg)
		if err != nil {
			return nil, err
		}
		b.video = &instance{handle: h, health: HealthStored}
	default:
		h, err := m.system.Allocate(cfg)
		if err != nil {
			return nil, err
		}
		b.system = &instance{handle: h, health: HealthStored}
	}
	return b, nil
}

// ReleaseBuffer returns a buffer made by AllocateBuffer.
func (m *Manager) ReleaseBuffer(b *Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.locked() {
		return ErrLocked
	}
	b.release()
	return nil
}

// ensureVideo creates the lazy accelerator instance of b.
func (m *Manager) ensureVideo(b *Buffer) (*instance, error) {
	if b.video != nil {
		return b.video, nil
	}
	if m.video == nil {
		return nil, fmt.Errorf("%w: %w", pool.ErrNoVideoMemory, ErrNoPool)
	}
	h, err := m.video.Allocate(b.config())
	if err != nil {
		fbcore.Logger().Warn("accelerator instance unavailable",
			"surface", b.surface.id, "policy", b.policy, "err", err)
		return nil, err
	}
	b.video = &instance{handle: h, health: HealthInvalid}
	return b.video, nil
}

// Flip exchanges the buffer roles of a flipping surface. Triple buffered
// surfaces rotate (front, back, idle) to (back, idle, front); double
// buffered surfaces swap front and back. Surfaces without CapsFlipping
// are left unchanged. Flip returns the flip count of s after the flip,
// which identifies it to Unflip.
func (m *Manager) Flip(s *Surface) uint64 {
	m.mu.Lock()
	s.mustBeAlive()
	if !s.caps.Has(CapsFlipping) {
		m.mu.Unlock()
		return s.flips.Load()
	}
	front, back, idle := s.roles[RoleFront], s.roles[RoleBack], s.roles[RoleIdle]
	if s.caps.Has(CapsTriple) {
		s.roles = [3]*Buffer{back, idle, front}
	} else {
		s.roles = [3]*Buffer{back, front, back}
	}
	m.stats.Flips++
	gen := s.flips.Add(1)
	fns := s.snapshotListeners()
	m.mu.Unlock()

	s.notify(fns, EventFlip)
	return gen
}

// Unflip undoes the flip that returned gen. It does nothing and returns
// false when s was flipped again since, or was destroyed.
func (m *Manager) Unflip(s *Surface, gen uint64) bool {
	m.mu.Lock()
	if s.destroyed || !s.caps.Has(CapsFlipping) || s.flips.Load() != gen {
		m.mu.Unlock()
		return false
	}
	front, back, idle := s.roles[RoleFront], s.roles[RoleBack], s.roles[RoleIdle]
	if s.caps.Has(CapsTriple) {
		s.roles = [3]*Buffer{idle, front, back}
	} else {
		s.roles = [3]*Buffer{back, front, back}
	}
	m.stats.Unflips++
	fns := s.snapshotListeners()
	m.mu.Unlock()

	s.notify(fns, EventFlip)
	return true
}

// SetPalette replaces the palette of an indexed surface.
func (m *Manager) SetPalette(s *Surface, p *pixel.Palette) error {
	if !s.format.IsIndexed() {
		return fmt.Errorf("%w: %s has no palette", ErrInvalidConfig, s.format)
	}
	m.mu.Lock()
	s.mustBeAlive()
	s.palette = p.Clone()
	fns := s.snapshotListeners()
	m.mu.Unlock()

	s.notify(fns, EventPalette)
	return nil
}

// Resize reallocates every buffer of s at the new size. Content is lost.
// It fails with ErrLocked while any buffer is locked and leaves s
// unchanged on any error.
func (m *Manager) Resize(s *Surface, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidConfig, width, height)
	}
	m.mu.Lock()
	s.mustBeAlive()
	for _, b := range s.buffers {
		if b.locked() {
			m.mu.Unlock()
			return ErrLocked
		}
	}

	oldW, oldH, oldBuffers := s.width, s.height, s.buffers
	s.width, s.height = width, height
	if err := m.allocateRoles(s); err != nil {
		s.width, s.height = oldW, oldH
		m.mu.Unlock()
		return err
	}
	for _, b := range oldBuffers {
		b.release()
	}
	fns := s.snapshotListeners()
	m.mu.Unlock()

	s.notify(fns, EventResize)
	return nil
}

// Destroy notifies listeners, then releases every buffer and detaches the
// palette. Storage still referenced elsewhere stays alive until released.
// It fails with ErrLocked while any buffer is locked.
func (m *Manager) Destroy(s *Surface) error {
	m.mu.Lock()
	if s.destroyed {
		m.mu.Unlock()
		return nil
	}
	for _, b := range s.buffers {
		if b.locked() {
			m.mu.Unlock()
			return fmt.Errorf("surface %d: %w", s.id, ErrLocked)
		}
	}
	fns := s.snapshotListeners()
	m.mu.Unlock()

	s.notify(fns, EventDestroy)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.destroyed {
		return nil
	}
	// Listeners and other goroutines may have locked a buffer while the
	// manager lock was dropped.
	for _, b := range s.buffers {
		if b.locked() {
			return fmt.Errorf("surface %d: %w", s.id, ErrLocked)
		}
	}
	for _, b := range s.buffers {
		b.release()
	}
	s.buffers = nil
	s.roles = [3]*Buffer{}
	s.depth = nil
	s.palette = nil
	s.listeners = nil
	s.destroyed = true
	delete(m.surfaces, s)

	fbcore.Logger().Debug("surface destroyed", "surface", s.id)
	return nil
}
