package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/pool/heap"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

var red = color.NRGBA{R: 0xff, A: 0xff}

type call struct {
	op          string
	left, right uint64
	update      Update
	flags       FlipFlags
}

// fakeLayer records driver calls by the allocation ids it was shown.
type fakeLayer struct {
	mu     sync.Mutex
	calls  []call
	vsyncs int

	// vsyncErrs are returned by the next WaitVSync calls.
	vsyncErrs []error
	flipDelay time.Duration

	// flipErr is returned by FlipRegion after recording the call.
	flipErr error
}

func lockID(l *pool.Lock) uint64 {
	if l == nil {
		return 0
	}
	return l.Allocation.ID()
}

func (d *fakeLayer) FlipRegion(_ *Region, left, right *pool.Lock, flags FlipFlags) error {
	time.Sleep(d.flipDelay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{op: "flip", left: lockID(left), right: lockID(right), flags: flags})
	return d.flipErr
}

func (d *fakeLayer) UpdateRegion(_ *Region, left, right *pool.Lock, u Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{op: "update", left: lockID(left), right: lockID(right), update: u})
	return nil
}

func (d *fakeLayer) WaitVSync(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vsyncs++
	if len(d.vsyncErrs) > 0 {
		err := d.vsyncErrs[0]
		d.vsyncErrs = d.vsyncErrs[1:]
		return err
	}
	return nil
}

func (d *fakeLayer) recorded() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]call(nil), d.calls...)
}

func newManager(t *testing.T) (*surface.Manager, *pool.Pool) {
	t.Helper()
	p, err := pool.New(context.Background(), heap.New(0))
	if err != nil {
		t.Fatal(err)
	}
	m, err := surface.NewManager(surface.WithSystemPool(p))
	if err != nil {
		t.Fatal(err)
	}
	return m, p
}

func newScheduler(t *testing.T, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	s := NewScheduler(opts...)
	t.Cleanup(s.Close)
	return s
}

func createSurface(t *testing.T, m *surface.Manager, w, h int, caps surface.Caps) *surface.Surface {
	t.Helper()
	s, err := m.CreateSurface(surface.Config{Width: w, Height: h, Format: pixel.FormatARGB, Caps: caps})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newRegion(t *testing.T, cfg RegionConfig) *Region {
	t.Helper()
	r, err := NewRegion(cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.Realize()
	return r
}

// shownID returns the allocation id a layer would show for role.
func shownID(t *testing.T, s *surface.Surface, role surface.Role) uint64 {
	t.Helper()
	h, err := s.Manager().DisplayHandle(s, role, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	return h.Allocation().ID()
}

func generate(t *testing.T, s *Scheduler, r *Region, req Request) *DisplayTask {
	t.Helper()
	dt, err := s.Generate(context.Background(), r, req)
	if err != nil {
		t.Fatal(err)
	}
	return dt
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestUnrotate(t *testing.T) {
	const w, h = 64, 32
	tests := []struct {
		rot  Rotation
		in   image.Rectangle
		want image.Rectangle
	}{
		{0, image.Rect(1, 2, 5, 7), image.Rect(1, 2, 5, 7)},
		{90, image.Rect(0, 0, 10, 20), image.Rect(0, 22, 20, 32)},
		{180, image.Rect(0, 0, 10, 20), image.Rect(54, 12, 64, 32)},
		{270, image.Rect(0, 0, 10, 20), image.Rect(44, 0, 64, 10)},
		{90, image.Rect(0, 0, 32, 64), image.Rect(0, 0, 64, 32)},
	}
	for _, tt := range tests {
		if got := tt.rot.Unrotate(tt.in, w, h); got != tt.want {
			t.Errorf("%d: Unrotate(%v) = %v, want %v", tt.rot, tt.in, got, tt.want)
		}
	}
}

func TestUnrotateMatchesPixels(t *testing.T) {
	const w, h = 5, 3
	// forward maps a surface pixel to the logical pixel showing it.
	forward := map[Rotation]func(x, y int) image.Point{
		0:   func(x, y int) image.Point { return image.Pt(x, y) },
		90:  func(x, y int) image.Point { return image.Pt(h-1-y, x) },
		180: func(x, y int) image.Point { return image.Pt(w-1-x, h-1-y) },
		270: func(x, y int) image.Point { return image.Pt(y, w-1-x) },
	}
	for rot, fwd := range forward {
		for y := range h {
			for x := range w {
				lp := fwd(x, y)
				got := rot.Unrotate(image.Rectangle{Min: lp, Max: lp.Add(image.Pt(1, 1))}, w, h)
				if want := image.Rect(x, y, x+1, y+1); got != want {
					t.Fatalf("%d: logical %v maps to %v, want %v", rot, lp, got, want)
				}
			}
		}
	}
}

func TestFrontOnlyUpdate(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{}
	sf := createSurface(t, m, 64, 32, 0)
	r := newRegion(t, RegionConfig{Mode: FrontOnly, Rotation: 90, Left: sf, Driver: d})

	dt := generate(t, s, r, Request{Left: image.Rect(0, 0, 10, 20)})
	if dt.Action() != ActionUpdate {
		t.Fatalf("Action = %s, want update", dt.Action())
	}
	waitIdle(t, s)

	calls := d.recorded()
	if len(calls) != 1 || calls[0].op != "update" {
		t.Fatalf("driver calls = %+v, want one update", calls)
	}
	if want := image.Rect(0, 22, 20, 32); calls[0].update.Left != want {
		t.Errorf("update = %v, want %v in surface coordinates", calls[0].update.Left, want)
	}
	if calls[0].left != shownID(t, sf, surface.RoleFront) || calls[0].right != 0 {
		t.Errorf("update showed %d/%d", calls[0].left, calls[0].right)
	}
	if sf.Flips() != 0 {
		t.Error("FrontOnly update flipped the surface")
	}
}

func TestBackVideoFlip(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{}
	sf := createSurface(t, m, 16, 16, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: d})

	back := shownID(t, sf, surface.RoleBack)
	dt := generate(t, s, r, Request{Flags: FlipOnSync})
	if dt.Action() != ActionFlip {
		t.Fatalf("Action = %s, want flip", dt.Action())
	}
	if shownID(t, sf, surface.RoleFront) != back {
		t.Error("old back buffer is not the new front buffer")
	}
	waitIdle(t, s)

	calls := d.recorded()
	if len(calls) != 1 || calls[0].op != "flip" {
		t.Fatalf("driver calls = %+v, want one flip", calls)
	}
	if calls[0].left != back || calls[0].flags != FlipOnSync {
		t.Errorf("flip = %+v, want left %d", calls[0], back)
	}
	if st := s.Stats(); st.Swaps != 1 || st.Flips != 1 || st.Pending != 0 {
		t.Errorf("stats = %+v", st)
	}
	if r.Current() != nil {
		t.Error("region still has a current task after it finished")
	}
}

func TestFailedFlipKeepsFrontBuffer(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	errFlip := errors.New("page flip rejected")
	d := &fakeLayer{flipErr: errFlip}
	sf := createSurface(t, m, 16, 16, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: d})

	front, back := shownID(t, sf, surface.RoleFront), shownID(t, sf, surface.RoleBack)
	dt := generate(t, s, r, Request{})
	if err := dt.Wait(context.Background()); !errors.Is(err, errFlip) {
		t.Fatalf("task result = %v, want %v", err, errFlip)
	}
	if got := shownID(t, sf, surface.RoleFront); got != front {
		t.Errorf("front = %d after failed flip, want %d", got, front)
	}
	if got := shownID(t, sf, surface.RoleBack); got != back {
		t.Errorf("back = %d after failed flip, want %d", got, back)
	}
	if st := s.Stats(); st.Reverted != 1 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}

	d.mu.Lock()
	d.flipErr = nil
	d.mu.Unlock()
	generate(t, s, r, Request{})
	waitIdle(t, s)
	if got := shownID(t, sf, surface.RoleFront); got != back {
		t.Errorf("front = %d after successful flip, want %d", got, back)
	}
}

func TestFailedFlipLeavesLaterFlips(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{flipErr: errors.New("page flip rejected")}
	sf := createSurface(t, m, 16, 16, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: d})

	first := generate(t, s, r, Request{Hold: true})
	generate(t, s, r, Request{Hold: true}).Discard()
	want := shownID(t, sf, surface.RoleFront)

	if err := s.Push(first); err != nil {
		t.Fatal(err)
	}
	if err := first.Wait(context.Background()); err == nil {
		t.Fatal("flip succeeded")
	}
	if got := shownID(t, sf, surface.RoleFront); got != want {
		t.Errorf("front = %d, want %d from the later flip", got, want)
	}
}

func TestDecisionTable(t *testing.T) {
	tests := []struct {
		name   string
		mode   BufferMode
		caps   surface.Caps
		req    Request
		action Action
		flips  uint64
	}{
		{"front only full", FrontOnly, 0, Request{}, ActionUpdate, 0},
		{"back video full", BackVideo, surface.CapsFlipping, Request{}, ActionFlip, 1},
		{"back video whole rect", BackVideo, surface.CapsFlipping, Request{Left: image.Rect(-4, -4, 40, 40)}, ActionFlip, 1},
		{"back video partial", BackVideo, surface.CapsFlipping, Request{Left: image.Rect(0, 0, 4, 4)}, ActionCopy, 0},
		{"back video partial swap", BackVideo, surface.CapsFlipping, Request{Left: image.Rect(0, 0, 4, 4), Flags: FlipSwap}, ActionFlip, 1},
		{"back video forced blit", BackVideo, surface.CapsFlipping, Request{Flags: FlipBlit}, ActionCopy, 0},
		{"back system full", BackSystem, surface.CapsFlipping, Request{}, ActionCopy, 0},
		{"triple full", Triple, surface.CapsTriple, Request{}, ActionFlip, 1},
		{"triple partial", Triple, surface.CapsTriple, Request{Left: image.Rect(1, 1, 2, 2)}, ActionCopy, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t)
			s := newScheduler(t)
			sf := createSurface(t, m, 16, 16, tt.caps)
			r := newRegion(t, RegionConfig{Mode: tt.mode, Left: sf, Driver: &fakeLayer{}})

			dt := generate(t, s, r, tt.req)
			if dt.Action() != tt.action {
				t.Errorf("Action = %s, want %s", dt.Action(), tt.action)
			}
			waitIdle(t, s)
			if sf.Flips() != tt.flips {
				t.Errorf("Flips = %d, want %d", sf.Flips(), tt.flips)
			}
			if err := dt.Task().Err(); err != nil {
				t.Errorf("task failed: %v", err)
			}
		})
	}
}

func TestBackSystemCopiesUpdate(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{}
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackSystem, Left: sf, Driver: d})

	l, err := m.SoftwareLock(sf, surface.RoleBack, pool.AccessWrite)
	if err != nil {
		t.Fatal(err)
	}
	img := l.Image()
	for y := range 8 {
		for x := range 8 {
			img.SetNRGBA(x, y, red)
		}
	}
	if err := m.Unlock(l); err != nil {
		t.Fatal(err)
	}

	generate(t, s, r, Request{Left: image.Rect(0, 0, 4, 4), Flags: FlipOnSync})
	waitIdle(t, s)

	l, err = m.SoftwareLock(sf, surface.RoleFront, pool.AccessRead)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Unlock(l) }()
	if got := l.Image().NRGBAAt(3, 3); got != red {
		t.Errorf("updated pixel = %v, want red", got)
	}
	if got := l.Image().NRGBAAt(4, 4); got == red {
		t.Error("pixel outside the update was copied")
	}

	calls := d.recorded()
	if len(calls) != 1 || calls[0].op != "update" || calls[0].update.Left != image.Rect(0, 0, 4, 4) {
		t.Errorf("driver calls = %+v", calls)
	}
	if d.vsyncs != 1 {
		t.Errorf("WaitVSync called %d times before the copy, want 1", d.vsyncs)
	}
	if st := s.Stats(); st.Copies != 1 || sf.Flips() != 0 {
		t.Errorf("copies %d flips %d", st.Copies, sf.Flips())
	}
}

func TestUnrealizedRegionSkipsDriver(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{}
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r, err := NewRegion(RegionConfig{Mode: BackVideo, Left: sf, Driver: d})
	if err != nil {
		t.Fatal(err)
	}

	generate(t, s, r, Request{})
	waitIdle(t, s)
	if len(d.recorded()) != 0 {
		t.Error("driver called for an unrealized region")
	}
	if sf.Flips() != 1 {
		t.Error("buffers not swapped")
	}
}

func TestStereoFlip(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{}
	left := createSurface(t, m, 8, 8, surface.CapsFlipping)
	right := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: left, Right: right, Driver: d})
	if !r.Stereo() {
		t.Fatal("region is not stereo")
	}

	wantLeft, wantRight := shownID(t, left, surface.RoleBack), shownID(t, right, surface.RoleBack)
	generate(t, s, r, Request{})
	generate(t, s, r, Request{Left: image.Rect(0, 0, 2, 2), Right: image.Rect(4, 4, 8, 8)})
	waitIdle(t, s)

	calls := d.recorded()
	if len(calls) != 2 {
		t.Fatalf("driver calls = %+v", calls)
	}
	if calls[0].op != "flip" || calls[0].left != wantLeft || calls[0].right != wantRight {
		t.Errorf("flip = %+v, want %d/%d", calls[0], wantLeft, wantRight)
	}
	u := calls[1].update
	if calls[1].op != "update" || u.Left != image.Rect(0, 0, 2, 2) || u.Right != image.Rect(4, 4, 8, 8) {
		t.Errorf("update = %+v", calls[1])
	}
	if left.Flips() != 1 || right.Flips() != 1 {
		t.Errorf("flips %d/%d, want both 1", left.Flips(), right.Flips())
	}
}

func TestFlipOrder(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t, WithWorkers(4))
	d := &fakeLayer{flipDelay: time.Millisecond}
	sf := createSurface(t, m, 8, 8, surface.CapsTriple)
	r := newRegion(t, RegionConfig{Mode: Triple, Left: sf, Driver: d})

	var want []uint64
	for range 12 {
		generate(t, s, r, Request{})
		want = append(want, shownID(t, sf, surface.RoleFront))
	}
	waitIdle(t, s)

	calls := d.recorded()
	if len(calls) != len(want) {
		t.Fatalf("got %d flips, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if c.left != want[i] {
			t.Fatalf("flip %d showed %d, want %d", i, c.left, want[i])
		}
	}
}

func TestReferenceSafety(t *testing.T) {
	m, p := newManager(t)
	s := newScheduler(t)
	sf := createSurface(t, m, 8, 8, 0)
	r := newRegion(t, RegionConfig{Mode: FrontOnly, Left: sf, Driver: &fakeLayer{}})

	dt := generate(t, s, r, Request{Hold: true})
	if dt.Task().Phase().String() != "Setup" {
		t.Fatalf("held task in phase %s", dt.Task().Phase())
	}

	h, err := m.DisplayHandle(sf, surface.RoleFront, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Deallocate(h); !errors.Is(err, pool.ErrInUse) {
		t.Errorf("Deallocate of displayed storage = %v, want ErrInUse", err)
	}
	h.Release()

	if err := m.Destroy(sf); err != nil {
		t.Fatal(err)
	}
	if p.Stats().Allocations != 1 {
		t.Fatalf("Allocations = %d, display task must keep the storage", p.Stats().Allocations)
	}

	if err := s.Push(dt); err != nil {
		t.Fatal(err)
	}
	if err := dt.Wait(context.Background()); err != nil {
		t.Errorf("task on destroyed surface: %v", err)
	}
	if p.Stats().Allocations != 0 {
		t.Error("display task kept its reference after finishing")
	}

	if _, err := s.Generate(context.Background(), r, Request{}); !errors.Is(err, ErrSurfaceDestroyed) {
		t.Errorf("Generate on destroyed surface = %v", err)
	}
}

func TestDiscardReleasesReferences(t *testing.T) {
	m, p := newManager(t)
	s := newScheduler(t)
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackSystem, Left: sf})

	dt := generate(t, s, r, Request{Hold: true})
	if err := m.Destroy(sf); err != nil {
		t.Fatal(err)
	}
	if p.Stats().Allocations != 2 {
		t.Fatalf("Allocations = %d, want both buffers kept", p.Stats().Allocations)
	}
	dt.Discard()
	if p.Stats().Allocations != 0 {
		t.Errorf("Allocations = %d after Discard", p.Stats().Allocations)
	}
	if s.Stats().Failed != 0 {
		t.Error("discarded task counted as failure")
	}
}

func TestVSyncRetry(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	d := &fakeLayer{vsyncErrs: []error{ErrInterrupted, ErrInterrupted}}
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: d})

	dt := generate(t, s, r, Request{Flags: FlipWaitForSync})
	if err := dt.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := s.Stats()
	if st.Retries != 2 || st.VSyncs != 1 {
		t.Errorf("retries %d vsyncs %d, want 2 and 1", st.Retries, st.VSyncs)
	}
}

func TestVSyncFailure(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	errIO := errors.New("vsync ioctl failed")
	d := &fakeLayer{vsyncErrs: []error{errIO}}
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: d})

	dt := generate(t, s, r, Request{Flags: FlipWait})
	if err := dt.Wait(context.Background()); !errors.Is(err, errIO) {
		t.Errorf("task result = %v, want %v", err, errIO)
	}
	if s.Stats().Failed != 1 {
		t.Errorf("Failed = %d", s.Stats().Failed)
	}
}

func TestSuspendedRegion(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	sf := createSurface(t, m, 8, 8, surface.CapsFlipping)
	r := newRegion(t, RegionConfig{Mode: BackVideo, Left: sf, Driver: &fakeLayer{}})

	r.Suspend()
	dt := generate(t, s, r, Request{Flags: FlipWait})
	if err := dt.Wait(context.Background()); !errors.Is(err, ErrSuspended) {
		t.Errorf("task result = %v, want ErrSuspended", err)
	}
	r.Resume()
	dt = generate(t, s, r, Request{Flags: FlipWait})
	if err := dt.Wait(context.Background()); err != nil {
		t.Errorf("after Resume: %v", err)
	}
}

func TestNewRegionValidation(t *testing.T) {
	m, _ := newManager(t)
	single := createSurface(t, m, 8, 8, 0)
	double := createSurface(t, m, 8, 8, surface.CapsFlipping)
	other := createSurface(t, m, 4, 8, surface.CapsFlipping)

	tests := []struct {
		name string
		cfg  RegionConfig
	}{
		{"no surface", RegionConfig{}},
		{"back video single", RegionConfig{Mode: BackVideo, Left: single}},
		{"triple double", RegionConfig{Mode: Triple, Left: double}},
		{"rotation", RegionConfig{Left: single, Rotation: 45}},
		{"stereo size", RegionConfig{Mode: BackVideo, Left: double, Right: other}},
		{"layer", RegionConfig{Left: single, Layer: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegion(tt.cfg); !errors.Is(err, ErrInvalidRegion) {
				t.Errorf("NewRegion = %v, want ErrInvalidRegion", err)
			}
		})
	}
}

func TestDestroyedRegionPanics(t *testing.T) {
	m, _ := newManager(t)
	s := newScheduler(t)
	r := newRegion(t, RegionConfig{Left: createSurface(t, m, 8, 8, 0)})
	r.Destroy()

	defer func() {
		if recover() == nil {
			t.Error("Generate on a destroyed region did not panic")
		}
	}()
	_, _ = s.Generate(context.Background(), r, Request{})
}

func TestGenerateAfterClose(t *testing.T) {
	m, _ := newManager(t)
	s := NewScheduler(WithWorkers(1))
	r := newRegion(t, RegionConfig{Left: createSurface(t, m, 8, 8, 0)})
	s.Close()
	if _, err := s.Generate(context.Background(), r, Request{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Generate after Close = %v", err)
	}
}

func TestPresentMode(t *testing.T) {
	if FrontOnly.PresentMode() == Triple.PresentMode() || BackVideo.PresentMode() != BackSystem.PresentMode() {
		t.Error("unexpected present mode mapping")
	}
}
