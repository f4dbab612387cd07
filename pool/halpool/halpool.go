// Package halpool provides an accelerator memory pool backend on a wgpu
// HAL device.
//
// Every allocation is a 2D texture plus a host shadow copy. Locks map the
// shadow and expose the texture as the mapping handle. Releasing a write
// lock marks the texture dirty; Flush uploads every dirty shadow through
// the device queue and Sync waits for the device to go idle.
package halpool

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Name is the registry name of the backend.
const Name = "halpool"

// DefaultBudget is the accelerator memory budget used when none is given (64 MB).
const DefaultBudget = 64 << 20

// ErrNoDevice is returned when the backend is created without a device.
var ErrNoDevice = errors.New("halpool: no device")

// textureUsage is requested for every surface texture.
const textureUsage = gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment

// Texture is the backend private state of one allocation.
type Texture struct {
	Texture hal.Texture
	Format  gputypes.TextureFormat

	shadow []byte
	dirty  bool
}

// Stats reports accelerator memory usage.
type Stats struct {
	Budget   int64
	Used     int64
	Textures int
	Uploads  uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("halpool[%d/%d KB, %d textures, %d uploads]",
		s.Used/1024, s.Budget/1024, s.Textures, s.Uploads)
}

// Backend allocates surface buffers as HAL textures.
type Backend struct {
	device hal.Device
	queue  hal.Queue
	budget int64

	mu       sync.Mutex
	used     int64
	textures map[*pool.Allocation]*Texture
	uploads  uint64
}

// New returns a backend allocating from device and uploading through queue.
// A budget of 0 selects DefaultBudget.
func New(device hal.Device, queue hal.Queue, budget int64) *Backend {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Backend{
		device:   device,
		queue:    queue,
		budget:   budget,
		textures: make(map[*pool.Allocation]*Texture),
	}
}

// Register makes a backend for device and queue available to pool.Open
// under Name.
func Register(device hal.Device, queue hal.Queue, budget int64) {
	pool.Register(Name, func() pool.Backend { return New(device, queue, budget) })
}

// Init implements pool.Backend.
func (b *Backend) Init(context.Context) (pool.Description, error) {
	if b.device == nil || b.queue == nil {
		return pool.Description{}, ErrNoDevice
	}
	return pool.Description{
		Name:     Name,
		Kind:     pool.KindVideo,
		CPU:      pool.AccessReadWrite,
		GPU:      pool.AccessReadWrite | pool.AccessShared,
		Layers:   pool.AccessRead,
		Capacity: b.budget,
	}, nil
}

// TestConfig implements pool.Backend.
func (b *Backend) TestConfig(cfg pool.Config) error {
	if cfg.Format.TextureFormat() == gputypes.TextureFormatUndefined ||
		cfg.Width <= 0 || cfg.Height <= 0 {
		return pool.ErrUnsupported
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
	defer b.mu.Unlock()
	if b.used+int64(size) > b.budget {
		return pool.ErrOutOfMemory
	}

	format := cfg.Format.TextureFormat()
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: a.String(),
		Size: hal.Extent3D{
			Width:              uint32(cfg.Width),  //nolint:gosec // validated positive
			Height:             uint32(cfg.Height), //nolint:gosec // validated positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage,
	})
	if err != nil {
		return fmt.Errorf("halpool: create texture: %w", err)
	}

	t := &Texture{Texture: tex, Format: format, shadow: make([]byte, size)}
	b.textures[a] = t
	b.used += int64(size)

	a.Pitch = cfg.Format.Pitch(cfg.Width)
	a.Size = size
	a.Private = t
	return nil
}

// Deallocate implements pool.Backend.
func (b *Backend) Deallocate(a *pool.Allocation) error {
	b.mu.Lock()
	t, ok := b.textures[a]
	delete(b.textures, a)
	if ok {
		b.used -= int64(a.Size)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("halpool: %s not allocated here", a)
	}
	b.device.DestroyTexture(t.Texture)
	a.Private = nil
	return nil
}

func textureOf(a *pool.Allocation) (*Texture, error) {
	t, ok := a.Private.(*Texture)
	if !ok {
		return nil, fmt.Errorf("halpool: %s has no texture", a)
	}
	return t, nil
}

// Lock implements pool.Backend. The mapping handle is the *Texture.
func (b *Backend) Lock(a *pool.Allocation, _ pool.Accessor, _ pool.Access) (pool.Mapping, error) {
	t, err := textureOf(a)
	if err != nil {
		return pool.Mapping{}, err
	}
	return pool.Mapping{Mem: t.shadow, Pitch: a.Pitch, Handle: t}, nil
}

// Unlock implements pool.Backend. Ending a write lock marks the texture dirty.
func (b *Backend) Unlock(a *pool.Allocation, _ pool.Accessor, access pool.Access) error {
	if !access.Has(pool.AccessWrite) {
		return nil
	}
	t, err := textureOf(a)
	if err != nil {
		return err
	}
	b.mu.Lock()
	t.dirty = true
	b.mu.Unlock()
	return nil
}

// Flush uploads every texture written through a lock since the last flush.
func (b *Backend) Flush() error {
	b.mu.Lock()
	var pending []*pool.Allocation
	for a, t := range b.textures {
		if t.dirty {
			t.dirty = false
			pending = append(pending, a)
		}
	}
	b.mu.Unlock()

	for _, a := range pending {
		cfg := a.Config()
		if err := b.upload(a, image.Rect(0, 0, cfg.Width, cfg.Height)); err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports whether a has writes not yet uploaded.
func (b *Backend) Dirty(a *pool.Allocation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.textures[a]
	return ok && t.dirty
}

func (b *Backend) upload(a *pool.Allocation, r image.Rectangle) error {
	if r.Empty() {
		return nil
	}
	t, err := textureOf(a)
	if err != nil {
		return err
	}
	bpp := a.Config().Format.BytesPerPixel()
	off := r.Min.Y*a.Pitch + r.Min.X*bpp
	err = b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: t.Texture,
			Origin:  hal.Origin3D{X: uint32(r.Min.X), Y: uint32(r.Min.Y)}, //nolint:gosec // clipped
			Aspect:  gputypes.TextureAspectAll,
		},
		t.shadow[off:],
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(a.Pitch), //nolint:gosec // pitch fits
			RowsPerImage: uint32(r.Dy()),  //nolint:gosec // clipped
		},
		&hal.Extent3D{Width: uint32(r.Dx()), Height: uint32(r.Dy()), DepthOrArrayLayers: 1}, //nolint:gosec // clipped
	)
	if err != nil {
		return fmt.Errorf("halpool: upload %s: %w", a, err)
	}
	b.mu.Lock()
	b.uploads++
	b.mu.Unlock()
	return nil
}

// Read implements pool.Backend.
func (b *Backend) Read(a *pool.Allocation, dst []byte, dstPitch int, r image.Rectangle) error {
	t, err := textureOf(a)
	if err != nil {
		return err
	}
	pool.CopyRows(dst, dstPitch, t.shadow, a.Pitch, a.Config().Format, r)
	return nil
}

// Write implements pool.Backend.
func (b *Backend) Write(a *pool.Allocation, src []byte, srcPitch int, r image.Rectangle) error {
	t, err := textureOf(a)
	if err != nil {
		return err
	}
	pool.CopyRows(t.shadow, a.Pitch, src, srcPitch, a.Config().Format, r)
	return b.upload(a, r)
}

// Sync blocks until the device finished all submitted work.
func (b *Backend) Sync() error {
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("halpool: wait idle: %w", err)
	}
	return nil
}

// Stats returns a snapshot of accelerator memory usage.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Budget: b.budget, Used: b.used, Textures: len(b.textures), Uploads: b.uploads}
}

// Close destroys every remaining texture.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for a, t := range b.textures {
		b.device.DestroyTexture(t.Texture)
		delete(b.textures, a)
	}
	b.used = 0
	return nil
}
