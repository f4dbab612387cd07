package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/pool/halpool"
	"github.com/deniskropp/DirectFB-sub015/pool/heap"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

var red = color.NRGBA{R: 0xff, A: 0xff}

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

func newVideoManager(t *testing.T) *surface.Manager {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatal(err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no noop adapters")
	}
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	backend := halpool.New(dev.Device, dev.Queue, 0)
	video, err := pool.New(context.Background(), backend)
	if err != nil {
		t.Fatal(err)
	}
	system, err := pool.New(context.Background(), heap.New(0))
	if err != nil {
		t.Fatal(err)
	}
	m, err := surface.NewManager(
		surface.WithSystemPool(system),
		surface.WithVideoPool(video),
		surface.WithSyncer(backend),
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	t.Cleanup(e.Close)
	return e
}

func createSurface(t *testing.T, m *surface.Manager, cfg surface.Config) *surface.Surface {
	t.Helper()
	s, err := m.CreateSurface(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func pixelAt(t *testing.T, m *surface.Manager, s *surface.Surface, role surface.Role, x, y int) color.NRGBA {
	t.Helper()
	l, err := m.SoftwareLock(s, role, pool.AccessRead)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Unlock(l) }()
	return l.Image().NRGBAAt(x, y)
}

// bind returns a task with the fill state of s recorded.
func bind(t *testing.T, e *Engine, s *gfx.RenderState) *RenderTask {
	t.Helper()
	rt, err := e.Bind(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CheckState(s, gfx.AccelFillRectangle); err != nil {
		t.Fatal(err)
	}
	if err := e.SetState(rt, s, gfx.AccelFillRectangle); err != nil {
		t.Fatal(err)
	}
	return rt
}

func TestFillThenFlip(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	s := createSurface(t, m, surface.Config{
		Width: 640, Height: 480, Format: pixel.FormatRGB16, Caps: surface.CapsFlipping,
	})
	oldFront := pixelAt(t, m, s, surface.RoleFront, 0, 0)

	r := e.NewRenderer()
	r.State().SetDestination(s)
	r.State().SetColor(red)
	if err := r.FillRectangles(context.Background(), image.Rect(0, 0, 640, 480)); err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	m.Flip(s)
	if err := e.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Last().Task().Err(); err != nil {
		t.Fatalf("task failed: %v", err)
	}

	if got := pixelAt(t, m, s, surface.RoleFront, 0, 0); got != red {
		t.Errorf("front (0,0) = %v, want %v", got, red)
	}
	if got := pixelAt(t, m, s, surface.RoleFront, 639, 479); got != red {
		t.Errorf("front (639,479) = %v, want %v", got, red)
	}
	if got := pixelAt(t, m, s, surface.RoleBack, 0, 0); got != oldFront {
		t.Errorf("back (0,0) = %v, want old front %v", got, oldFront)
	}
}

func TestBackpressure(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t, WithWeightMax(100), WithWeights(Weights{Base: 10}))
	s := createSurface(t, m, surface.Config{Width: 16, Height: 16, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	rt := bind(t, e, st)
	defer e.Discard(rt)

	var rects []image.Rectangle
	for i := range 10 {
		rects = append(rects, image.Rect(i, 0, i+1, 1))
	}
	if _, err := e.FillRectangles(rt, rects...); err != nil {
		t.Fatal(err)
	}
	if rt.Weight() != 10*11 {
		t.Errorf("Weight = %d, want %d", rt.Weight(), 10*11)
	}
	if err := e.Check(rt); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Check = %v, want ErrLimitExceeded", err)
	}

	n, length := rt.NumCommands(), rt.Len()
	if _, err := e.FillRectangles(rt, image.Rect(0, 0, 1, 1)); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("FillRectangles on full task = %v", err)
	}
	if rt.NumCommands() != n || rt.Len() != length {
		t.Error("primitive recorded into a full task")
	}
}

func TestClipDropsInvisibleGeometry(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	s := createSurface(t, m, surface.Config{Width: 32, Height: 32, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	st.SetClip(image.Rect(0, 0, 16, 16))
	rt := bind(t, e, st)
	defer e.Discard(rt)

	n, length, weight := rt.NumCommands(), rt.Len(), rt.Weight()
	kept, err := e.FillRectangles(rt, image.Rect(20, 20, 30, 30))
	if err != nil {
		t.Fatal(err)
	}
	if kept != 0 || rt.NumCommands() != n || rt.Len() != length || rt.Weight() != weight {
		t.Errorf("invisible rectangle recorded: kept %d", kept)
	}

	inside := image.Rect(2, 3, 8, 9)
	kept, err = e.FillRectangles(rt, inside, image.Rect(10, 10, 40, 40), image.Rect(-5, 0, -1, 5))
	if err != nil {
		t.Fatal(err)
	}
	if kept != 2 {
		t.Fatalf("kept %d rectangles, want 2", kept)
	}
	cmd := rt.log.open[len(rt.log.open)-1].(FillRectangles)
	if cmd.Rects[0] != inside {
		t.Errorf("inside rectangle changed to %v", cmd.Rects[0])
	}
	if want := image.Rect(10, 10, 16, 16); cmd.Rects[1] != want {
		t.Errorf("partial rectangle = %v, want %v", cmd.Rects[1], want)
	}
}

func countFills(cmds []Command) (calls, rects int) {
	for _, c := range cmds {
		if f, ok := c.(FillRectangles); ok {
			calls++
			rects += len(f.Rects)
		}
	}
	return calls, rects
}

func TestSplitAtPrimitiveBoundary(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t, WithBufferMax(400))
	s := createSurface(t, m, surface.Config{Width: 200, Height: 20, Format: pixel.FormatRGB16})

	r := e.NewRenderer()
	r.State().SetDestination(s)
	var rects []image.Rectangle
	for i := range 10 {
		rects = append(rects, image.Rect(i*10, 0, i*10+10, 10))
	}
	for i := range 3 {
		if err := r.FillRectangles(context.Background(), rects...); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if r.Flushed() != 1 {
		t.Fatalf("Flushed = %d after three calls, want 1", r.Flushed())
	}
	first := r.Last()
	if err := r.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := r.Last()

	if got := e.Stats().Bound; got != 2 {
		t.Errorf("Bound = %d, want 2", got)
	}
	for _, tt := range []struct {
		name  string
		rt    *RenderTask
		calls int
	}{
		{"first", first, 2},
		{"second", second, 1},
	} {
		calls, n := countFills(tt.rt.Commands())
		if calls != tt.calls || n != 10*tt.calls {
			t.Errorf("%s task: %d fills with %d rectangles, want %d with %d", tt.name, calls, n, tt.calls, 10*tt.calls)
		}
		if err := tt.rt.Task().Err(); err != nil {
			t.Errorf("%s task: %v", tt.name, err)
		}
	}
	if first.Len() < 400 || second.Len() >= 400 {
		t.Errorf("lengths %d, %d", first.Len(), second.Len())
	}
}

// gateDriver blocks in CheckState until gate is closed and accelerates
// nothing.
type gateDriver struct {
	fakeDriver
	gate chan struct{}
}

func (d *gateDriver) CheckState(*gfx.RenderState, gfx.Accel) { <-d.gate }

func TestBindBlocksAtAdmissionLimit(t *testing.T) {
	m, _ := newManager(t)
	d := &gateDriver{gate: make(chan struct{})}
	e := newEngine(t, WithCores(1), WithQueueFactor(1), WithDriver(d))
	s := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	rt := bind(t, e, st)
	if _, err := e.FillRectangles(rt, s.Bounds()); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(rt); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Bind(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Bind with a full queue = %v, want deadline exceeded", err)
	}

	close(d.gate)
	next, err := e.Bind(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	e.Discard(next)
	if err := rt.Wait(context.Background()); err != nil {
		t.Errorf("first task: %v", err)
	}
}

func TestDestroyedDestinationFailsTask(t *testing.T) {
	m, p := newManager(t)
	e := newEngine(t)
	s := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	rt := bind(t, e, st)
	if _, err := e.FillRectangles(rt, s.Bounds()); err != nil {
		t.Fatal(err)
	}
	if err := m.Destroy(s); err != nil {
		t.Fatal(err)
	}
	if p.Stats().Allocations != 1 {
		t.Fatalf("Allocations = %d, task reference must keep the buffer", p.Stats().Allocations)
	}
	if err := e.Flush(rt); err != nil {
		t.Fatal(err)
	}
	if err := rt.Wait(context.Background()); !errors.Is(err, surface.ErrReleased) {
		t.Errorf("task result = %v, want ErrReleased", err)
	}
	if p.Stats().Allocations != 0 {
		t.Error("task kept its references after finishing")
	}
	if e.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", e.Stats().Failed)
	}
}

func TestBlitReplay(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	src := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})
	dst := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatRGB16})
	ctx := context.Background()

	r := e.NewRenderer()
	r.State().SetDestination(src)
	r.State().SetColor(red)
	if err := r.FillRectangles(ctx, image.Rect(0, 0, 4, 4)); err != nil {
		t.Fatal(err)
	}

	r.State().SetDestination(dst)
	r.State().SetSource(src)
	r.State().From = surface.RoleFront
	if err := r.Blit(ctx, BlitOp{Src: image.Rect(0, 0, 4, 4), Dst: image.Pt(4, 4)}); err != nil {
		t.Fatal(err)
	}
	if err := r.StretchBlit(ctx, StretchOp{Src: image.Rect(0, 0, 2, 2), Dst: image.Rect(0, 0, 4, 4)}); err != nil {
		t.Fatal(err)
	}
	if err := r.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Last().Task().Err(); err != nil {
		t.Fatal(err)
	}

	if got := pixelAt(t, m, dst, surface.RoleFront, 5, 5); got != red {
		t.Errorf("blitted pixel = %v, want red", got)
	}
	if got := pixelAt(t, m, dst, surface.RoleFront, 3, 3); got != red {
		t.Errorf("stretched pixel = %v, want red", got)
	}
	if got := pixelAt(t, m, dst, surface.RoleFront, 4, 0); got.R != 0 {
		t.Errorf("untouched pixel = %v", got)
	}
}

func TestStretchSourceClipCutsDestination(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	src := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})
	dst := createSurface(t, m, surface.Config{Width: 32, Height: 32, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(dst)
	st.SetSource(src)
	rt, err := e.Bind(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Discard(rt)
	if err := e.SetState(rt, st, gfx.AccelStretchBlit); err != nil {
		t.Fatal(err)
	}

	kept, err := e.StretchBlit(rt, StretchOp{Src: image.Rect(-8, 0, 8, 8), Dst: image.Rect(0, 0, 16, 8)})
	if err != nil || kept != 1 {
		t.Fatalf("StretchBlit = %d, %v", kept, err)
	}
	cmd := rt.log.open[len(rt.log.open)-1].(StretchBlit)
	want := StretchOp{Src: image.Rect(0, 0, 8, 8), Dst: image.Rect(8, 0, 16, 8)}
	if cmd.Ops[0] != want {
		t.Errorf("recorded %+v, want %+v", cmd.Ops[0], want)
	}
}

func TestFailedSetStateRecordsNothing(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	a := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})
	b := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})
	gone := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(a)
	rt := bind(t, e, st)
	defer e.Discard(rt)
	n, length, accesses := rt.NumCommands(), rt.Len(), len(rt.Task().Accesses())

	st.SetDestination(b)
	st.SetColor(red)
	st.SetClip(image.Rect(1, 1, 4, 4))
	modified := st.Modified
	if err := e.SetState(rt, st, gfx.AccelBlit); !errors.Is(err, gfx.ErrUnsupported) {
		t.Fatalf("SetState without source = %v, want ErrUnsupported", err)
	}

	st.SetSource(gone)
	if err := m.Destroy(gone); err != nil {
		t.Fatal(err)
	}
	if err := e.SetState(rt, st, gfx.AccelBlit); !errors.Is(err, gfx.ErrUnsupported) {
		t.Fatalf("SetState with destroyed source = %v, want ErrUnsupported", err)
	}

	if rt.NumCommands() != n || rt.Len() != length {
		t.Errorf("failed SetState recorded: %d commands, %d bytes, want %d, %d", rt.NumCommands(), rt.Len(), n, length)
	}
	if got := len(rt.Task().Accesses()); got != accesses {
		t.Errorf("access list grew to %d, want %d", got, accesses)
	}
	if st.Modified&modified != modified {
		t.Errorf("dirty bits %v cleared, want %v kept", st.Modified, modified)
	}

	if err := e.SetState(rt, st, gfx.AccelFillRectangle); err != nil {
		t.Fatal(err)
	}
	if rt.NumCommands() == n {
		t.Error("SetState after failures recorded nothing")
	}
}

func TestSourceStaysDirtyForDrawing(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	s := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatARGB})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	st.SetSource(s)
	rt := bind(t, e, st)
	defer e.Discard(rt)
	if st.Modified != gfx.ModSource {
		t.Errorf("after drawing state Modified = %b, want only source", st.Modified)
	}
	if err := e.SetState(rt, st, gfx.AccelBlit); err != nil {
		t.Fatal(err)
	}
	if st.Modified != gfx.ModNone {
		t.Errorf("after blitting state Modified = %b, want none", st.Modified)
	}
}

func TestIndexedPaletteRecordedInline(t *testing.T) {
	m, _ := newManager(t)
	e := newEngine(t)
	s := createSurface(t, m, surface.Config{Width: 8, Height: 8, Format: pixel.FormatLUT8})

	st := gfx.NewRenderState()
	st.SetDestination(s)
	rt := bind(t, e, st)
	defer e.Discard(rt)

	pal := pixel.NewPalette(4)
	pal.Entries[1] = red
	if err := m.SetPalette(s, pal); err != nil {
		t.Fatal(err)
	}

	var recorded *SetDestinationPalette
	for _, c := range rt.log.open {
		if p, ok := c.(SetDestinationPalette); ok {
			recorded = &p
		}
	}
	if recorded == nil {
		t.Fatal("no palette recorded for indexed destination")
	}
	if recorded.Entries[1] == red {
		t.Error("recorded palette follows later palette changes")
	}

	st.SetDrawingFlags(gfx.DrawBlend)
	if err := e.CheckState(st, gfx.AccelFillRectangle); !errors.Is(err, gfx.ErrUnsupported) {
		t.Errorf("blend into LUT8 = %v, want ErrUnsupported", err)
	}
	if st.Accel&gfx.AccelFillRectangle != 0 {
		t.Error("unsupported primitive left in Accel")
	}
}

func TestUnknownCommand(t *testing.T) {
	r := &replay{state: gfx.NewRenderState()}
	if err := r.exec(nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("exec(nil) = %v, want ErrUnknownCommand", err)
	}
}

func TestChunkedLog(t *testing.T) {
	l := commandLog{chunkSize: 3 * word * 2}
	for range 7 {
		l.append(SetColor{})
	}
	chunks := l.seal()
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[2]) != 1 {
		t.Errorf("chunk sizes %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if l.count != 7 || l.length != 7*(SetColor{}).Size() {
		t.Errorf("count %d length %d", l.count, l.length)
	}
}

// fakeDriver accelerates fills and records the calls.
type fakeDriver struct {
	mu     sync.Mutex
	fills  []image.Rectangle
	states []*surface.Lock
	emits  int
	resets int
	syncs  int

	// syncErrs are returned by the next Sync calls.
	syncErrs []error
}

func (d *fakeDriver) Info() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "fake", Type: gpucontext.AdapterTypeSoftware}
}
func (d *fakeDriver) Reset() { d.mu.Lock(); d.resets++; d.mu.Unlock() }
func (d *fakeDriver) Sync(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncs++
	if len(d.syncErrs) > 0 {
		err := d.syncErrs[0]
		d.syncErrs = d.syncErrs[1:]
		return err
	}
	return nil
}
func (d *fakeDriver) EmitCommands()          { d.mu.Lock(); d.emits++; d.mu.Unlock() }
func (d *fakeDriver) DrawLine(gfx.Line) bool { return false }
func (d *fakeDriver) Blit(image.Rectangle, image.Point) bool {
	return false
}
func (d *fakeDriver) StretchBlit(image.Rectangle, image.Rectangle) bool { return false }
func (d *fakeDriver) TextureTriangles([]gfx.Triangle) bool            { return false }

func (d *fakeDriver) CheckState(s *gfx.RenderState, op gfx.Accel) {
	if op == gfx.AccelFillRectangle {
		s.Accel |= op
	}
}

func (d *fakeDriver) SetState(s *gfx.RenderState, _ gfx.Accel) error {
	d.mu.Lock()
	d.states = append(d.states, s.Dst)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) FillRectangle(r image.Rectangle) bool {
	d.mu.Lock()
	d.fills = append(d.fills, r)
	d.mu.Unlock()
	return true
}

func TestDriverExecutesAcceleratedPrimitives(t *testing.T) {
	m := newVideoManager(t)
	d := &fakeDriver{}
	e := newEngine(t, WithDriver(d))
	s := createSurface(t, m, surface.Config{
		Width: 16, Height: 16, Format: pixel.FormatARGB, Policy: surface.PolicyVideoHigh,
	})
	ctx := context.Background()

	r := e.NewRenderer()
	r.State().SetDestination(s)
	if err := r.FillRectangles(ctx, image.Rect(0, 0, 4, 4), image.Rect(8, 8, 20, 20)); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawLines(ctx, gfx.Line{X1: 0, Y1: 15, X2: 15, Y2: 15}); err != nil {
		t.Fatal(err)
	}
	if err := r.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Last().Task().Err(); err != nil {
		t.Fatal(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.fills) != 2 || d.fills[1] != image.Rect(8, 8, 16, 16) {
		t.Errorf("driver fills = %v", d.fills)
	}
	if len(d.states) != 1 || d.states[0] == nil || d.states[0].Kind != pool.KindVideo {
		t.Errorf("driver state not given a video lock: %v", d.states)
	}
	if d.emits != 1 {
		t.Errorf("EmitCommands called %d times, want 1", d.emits)
	}
	st := m.Stats()
	if st.HardwareLocks != 1 || st.SoftwareLocks != 1 {
		t.Errorf("locks hw=%d sw=%d, want 1 each", st.HardwareLocks, st.SoftwareLocks)
	}

	// Software line after a hardware fill.
	if got := pixelAt(t, m, s, surface.RoleFront, 3, 15); got != (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Errorf("line pixel = %v", got)
	}
}

func TestSyncWaitsForDriver(t *testing.T) {
	d := &fakeDriver{syncErrs: []error{gfx.ErrInterrupted, gfx.ErrInterrupted}}
	e := newEngine(t, WithDriver(d))

	d.mu.Lock()
	resets := d.resets
	d.mu.Unlock()
	if resets != 1 {
		t.Errorf("Reset called %d times by New, want 1", resets)
	}

	if err := e.Sync(context.Background()); err != nil {
		t.Fatalf("Sync = %v", err)
	}
	st := e.Stats()
	if st.DriverSyncs != 1 || st.SyncRetries != 2 {
		t.Errorf("stats = %+v, want 1 sync after 2 retries", st)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.syncs != 3 {
		t.Errorf("driver Sync called %d times, want 3", d.syncs)
	}
}

func TestSyncDriverFailure(t *testing.T) {
	errIO := errors.New("engine hang")
	d := &fakeDriver{syncErrs: []error{gfx.ErrInterrupted, errIO}}
	e := newEngine(t, WithDriver(d))

	if err := e.Sync(context.Background()); !errors.Is(err, errIO) {
		t.Fatalf("Sync = %v, want %v", err, errIO)
	}
	if st := e.Stats(); st.DriverSyncs != 0 || st.SyncRetries != 1 {
		t.Errorf("stats = %+v", st)
	}
	d.mu.Lock()
	resets := d.resets
	d.mu.Unlock()
	if resets != 2 {
		t.Errorf("Reset called %d times, want 2 (start and failed sync)", resets)
	}

	if err := e.Sync(context.Background()); err != nil {
		t.Errorf("Sync after reset = %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvCores, "3")
	t.Setenv(EnvWeightMax, "1000")
	t.Setenv(EnvBufferMax, "")
	c, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.Cores != 3 || c.WeightMax != 1000 || c.BufferMax != DefaultBufferMax {
		t.Errorf("config = %+v", c)
	}

	t.Setenv(EnvBufferMax, "lots")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("invalid FBCORE_BUFFER_MAX accepted")
	}
	t.Setenv(EnvBufferMax, "-1")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("negative FBCORE_BUFFER_MAX accepted")
	}
}

func TestConfigNormalize(t *testing.T) {
	e := newEngine(t, WithCores(100), WithWeightMax(-1), WithQueueFactor(0))
	c := e.Config()
	if c.Cores != 8 || c.WeightMax != DefaultWeightMax || c.QueueFactor != DefaultQueueFactor {
		t.Errorf("normalized config = %+v", c)
	}
}
