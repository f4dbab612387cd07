package display

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

// LayerDriver is the boundary to the screen and layer hardware.
//
// The locks passed to FlipRegion and UpdateRegion map the buffers the
// layer shows from now on; right is nil for mono regions. They are valid
// only for the duration of the call.
type LayerDriver interface {
	// FlipRegion shows the new front buffers.
	FlipRegion(r *Region, left, right *pool.Lock, flags FlipFlags) error

	// UpdateRegion tells the layer that update changed in the shown
	// buffers. Rectangles are in unrotated surface coordinates.
	UpdateRegion(r *Region, left, right *pool.Lock, update Update) error

	// WaitVSync blocks until the next vertical sync. It may return
	// ErrInterrupted.
	WaitVSync(ctx context.Context) error
}

// RegionConfig describes a region to create.
type RegionConfig struct {
	// Layer is the display layer index, used as the pool accessor.
	Layer int

	Mode     BufferMode
	Rotation Rotation

	// Left is the shown surface. Right is set for stereo regions and must
	// match Left in size and format.
	Left  *surface.Surface
	Right *surface.Surface

	Driver LayerDriver
}

// Region is the part of a display layer a surface is shown in.
//
// Its mutex is taken before any surface manager lock.
type Region struct {
	mu sync.Mutex

	layer    int
	mode     BufferMode
	rotation Rotation
	left     *surface.Surface
	right    *surface.Surface
	driver   LayerDriver

	realized  bool
	suspended bool
	destroyed bool

	// current is the most recently pushed display task.
	current *DisplayTask
}

// NewRegion validates cfg and returns an unrealized region.
func NewRegion(cfg RegionConfig) (*Region, error) {
	if cfg.Left == nil {
		return nil, fmt.Errorf("%w: no surface", ErrInvalidRegion)
	}
	if !cfg.Rotation.Valid() {
		return nil, fmt.Errorf("%w: rotation %d", ErrInvalidRegion, cfg.Rotation)
	}
	if cfg.Layer < 0 {
		return nil, fmt.Errorf("%w: layer %d", ErrInvalidRegion, cfg.Layer)
	}
	for _, s := range []*surface.Surface{cfg.Left, cfg.Right} {
		if s == nil {
			continue
		}
		if err := checkMode(cfg.Mode, s); err != nil {
			return nil, err
		}
	}
	if cfg.Right != nil {
		if cfg.Right.Bounds() != cfg.Left.Bounds() || cfg.Right.Format() != cfg.Left.Format() {
			return nil, fmt.Errorf("%w: stereo surfaces differ", ErrInvalidRegion)
		}
	}
	return &Region{
		layer:    cfg.Layer,
		mode:     cfg.Mode,
		rotation: cfg.Rotation,
		left:     cfg.Left,
		right:    cfg.Right,
		driver:   cfg.Driver,
	}, nil
}

func checkMode(m BufferMode, s *surface.Surface) error {
	switch m {
	case FrontOnly:
		return nil
	case BackVideo, BackSystem:
		if s.Caps().Has(surface.CapsFlipping) {
			return nil
		}
	case Triple:
		if s.Caps().Has(surface.CapsFlipping | surface.CapsTriple) {
			return nil
		}
	default:
		return fmt.Errorf("%w: buffer mode %s", ErrInvalidRegion, m)
	}
	return fmt.Errorf("%w: %s needs a flipping surface", ErrInvalidRegion, m)
}

// Layer returns the layer index.
func (r *Region) Layer() int { return r.layer }

// Mode returns the buffer mode.
func (r *Region) Mode() BufferMode { return r.mode }

// Left returns the left eye surface.
func (r *Region) Left() *surface.Surface { return r.left }

// Right returns the right eye surface, or nil.
func (r *Region) Right() *surface.Surface { return r.right }

// Stereo reports whether the region shows two surfaces.
func (r *Region) Stereo() bool { return r.right != nil }

// Rotation returns the layer rotation.
func (r *Region) Rotation() Rotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotation
}

// SetRotation changes the layer rotation. Updates generated afterwards
// are mapped with it.
func (r *Region) SetRotation(rot Rotation) error {
	if !rot.Valid() {
		return fmt.Errorf("%w: rotation %d", ErrInvalidRegion, rot)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeAlive()
	r.rotation = rot
	return nil
}

// Bounds returns the logical bounds of the region, rotation applied.
func (r *Region) Bounds() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, h := r.left.Size()
	return image.Rectangle{Max: image.Pt(r.rotation.Size(w, h))}
}

// Realize makes the region visible. Only realized regions reach the
// layer driver.
func (r *Region) Realize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeAlive()
	r.realized = true
}

// Unrealize hides the region.
func (r *Region) Unrealize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realized = false
}

// Realized reports whether the region is visible.
func (r *Region) Realized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realized
}

// Suspend makes hardware waits fail with ErrSuspended until Resume.
func (r *Region) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = true
}

// Resume ends a suspension.
func (r *Region) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = false
}

// Suspended reports whether the region is suspended.
func (r *Region) Suspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended
}

// Current returns the most recently pushed display task that is not done,
// or nil.
func (r *Region) Current() *DisplayTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Destroy unrealizes the region. Using it afterwards is a bug. Pending
// display tasks still complete.
func (r *Region) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realized = false
	r.destroyed = true
}

func (r *Region) mustBeAlive() {
	if r.destroyed {
		panic(fmt.Sprintf("BUG: display: layer %d region used after destroy", r.layer))
	}
}

// surfaces returns the shown surfaces, left first.
func (r *Region) surfaces() []*surface.Surface {
	if r.right != nil {
		return []*surface.Surface{r.left, r.right}
	}
	return []*surface.Surface{r.left}
}
