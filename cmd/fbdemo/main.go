// Command fbdemo renders an animation through the engine, presents it on
// a simulated display layer and saves the last shown frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/display"
	"github.com/deniskropp/DirectFB-sub015/engine"
	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/pixel"
	"github.com/deniskropp/DirectFB-sub015/pool"
	"github.com/deniskropp/DirectFB-sub015/pool/halpool"
	_ "github.com/deniskropp/DirectFB-sub015/pool/heap"
	_ "github.com/deniskropp/DirectFB-sub015/pool/shm"
	"github.com/deniskropp/DirectFB-sub015/surface"
)

func main() {
	var (
		width   = flag.Int("width", 640, "surface width")
		height  = flag.Int("height", 480, "surface height")
		format  = flag.String("format", "RGB16", "pixel format")
		frames  = flag.Int("frames", 30, "number of frames")
		cores   = flag.Int("cores", 0, "render workers (0 uses FBCORE_CORES or the default)")
		backend = flag.String("pool", "heap", "system memory backend (heap or shm)")
		video   = flag.Bool("video", false, "add an accelerator memory pool on the noop HAL device")
		mode    = flag.String("mode", "triple", "buffer mode: front, backvideo, backsystem or triple")
		output  = flag.String("output", "fbdemo.png", "output file")
		verbose = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	fbcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	f, err := parseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}
	bm, caps, err := parseMode(*mode)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := engine.ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	if *cores > 0 {
		cfg.Cores = *cores
	}

	ctx := context.Background()
	m, err := newManager(ctx, *backend, *video)
	if err != nil {
		log.Fatalf("Failed to create surface manager: %v", err)
	}

	policy := surface.PolicySystemOnly
	if *video {
		policy = surface.PolicyVideoHigh
	}
	screen, err := m.CreateSurface(surface.Config{
		Width: *width, Height: *height, Format: f, Caps: caps, Policy: policy,
	})
	if err != nil {
		log.Fatalf("Failed to create surface: %v", err)
	}
	sprite, err := newSprite(m)
	if err != nil {
		log.Fatalf("Failed to create sprite: %v", err)
	}

	e := engine.New(engine.WithConfig(cfg))
	defer e.Close()
	sched := display.NewScheduler()
	defer sched.Close()

	layer := &logLayer{}
	region, err := display.NewRegion(display.RegionConfig{Mode: bm, Left: screen, Driver: layer})
	if err != nil {
		log.Fatalf("Failed to create region: %v", err)
	}
	region.Realize()

	r := e.NewRenderer()
	for i := range *frames {
		if err := drawFrame(ctx, r, screen, sprite, i, *frames); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
		if err := r.Sync(ctx); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
		if _, err := sched.Generate(ctx, region, display.Request{}); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}
	if err := sched.WaitIdle(ctx); err != nil {
		log.Fatal(err)
	}

	if err := savePNG(m, screen, *output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	printStats(e.Stats(), m.Stats(), sched.Stats(), layer)
	log.Printf("Frame saved to %s (%dx%d %s, %s)\n", *output, *width, *height, f, bm)
}

func parseFormat(name string) (pixel.Format, error) {
	for _, f := range pixel.Formats() {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return pixel.FormatUnknown, fmt.Errorf("unknown pixel format %q", name)
}

func parseMode(name string) (display.BufferMode, surface.Caps, error) {
	switch strings.ToLower(name) {
	case "front":
		return display.FrontOnly, 0, nil
	case "backvideo":
		return display.BackVideo, surface.CapsFlipping, nil
	case "backsystem":
		return display.BackSystem, surface.CapsFlipping, nil
	case "triple":
		return display.Triple, surface.CapsTriple, nil
	}
	return 0, 0, fmt.Errorf("unknown buffer mode %q", name)
}

func newManager(ctx context.Context, backend string, video bool) (*surface.Manager, error) {
	system, err := pool.Open(ctx, backend)
	if err != nil {
		return nil, err
	}
	opts := []surface.ManagerOption{surface.WithSystemPool(system)}
	if video {
		instance, err := noop.API{}.CreateInstance(nil)
		if err != nil {
			return nil, err
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			return nil, fmt.Errorf("no HAL adapters")
		}
		dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			return nil, err
		}
		b := halpool.New(dev.Device, dev.Queue, 0)
		vp, err := pool.New(ctx, b)
		if err != nil {
			return nil, err
		}
		opts = append(opts, surface.WithVideoPool(vp), surface.WithSyncer(b))
	}
	return surface.NewManager(opts...)
}

// newSprite creates a small checkered ARGB surface.
func newSprite(m *surface.Manager) (*surface.Surface, error) {
	s, err := m.CreateSurface(surface.Config{Width: 32, Height: 32, Format: pixel.FormatARGB})
	if err != nil {
		return nil, err
	}
	l, err := m.SoftwareLock(s, surface.RoleFront, pool.AccessWrite)
	if err != nil {
		return nil, err
	}
	img := l.Image()
	for y := range 32 {
		for x := range 32 {
			c := color.NRGBA{R: 0xff, G: 0xc0, A: 0xc0}
			if (x/8+y/8)%2 == 0 {
				c = color.NRGBA{B: 0xff, A: 0xff}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return s, m.Unlock(l)
}

func drawFrame(ctx context.Context, r *engine.Renderer, screen, sprite *surface.Surface, i, n int) error {
	w, h := screen.Size()
	st := r.State()
	st.SetDestination(screen)
	st.SetDrawingFlags(gfx.DrawNoFx)

	steps := 16
	for k := range steps {
		v := uint8(0x20 + k*0x08)
		st.SetColor(color.NRGBA{R: v / 3, G: v / 2, B: v, A: 0xff})
		if err := r.FillRectangles(ctx, image.Rect(0, h*k/steps, w, h*(k+1)/steps)); err != nil {
			return err
		}
	}

	x := (w - 64) * i / max(n-1, 1)
	st.SetColor(color.NRGBA{R: 0xff, G: 0x40, B: 0x40, A: 0xc0})
	st.SetDrawingFlags(gfx.DrawBlend)
	if err := r.FillRectangles(ctx, image.Rect(x, h/4, x+64, h/4+64)); err != nil {
		return err
	}

	st.SetDrawingFlags(gfx.DrawNoFx)
	st.SetColor(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	var lines []gfx.Line
	for k := 0; k <= 8; k++ {
		lines = append(lines, gfx.Line{X1: 0, Y1: h - 1, X2: w * k / 8, Y2: h / 2})
	}
	if err := r.DrawLines(ctx, lines...); err != nil {
		return err
	}

	st.SetSource(sprite)
	st.SetBlittingFlags(gfx.BlitBlendAlphaChannel)
	if err := r.Blit(ctx, engine.BlitOp{Src: sprite.Bounds(), Dst: image.Pt(w-48, 16)}); err != nil {
		return err
	}
	st.SetBlittingFlags(gfx.BlitSmooth)
	if err := r.StretchBlit(ctx, engine.StretchOp{Src: sprite.Bounds(), Dst: image.Rect(16, h/2, 16+96, h/2+96)}); err != nil {
		return err
	}

	cx, cy := float32(w/2), float32(h*3/4)
	quad := []gfx.Vertex{
		{X: cx - 40, Y: cy - 40, S: 0, T: 0},
		{X: cx + 40, Y: cy - 30, S: 32, T: 0},
		{X: cx + 30, Y: cy + 40, S: 32, T: 32},
		{X: cx - 40, Y: cy + 30, S: 0, T: 32},
	}
	st.SetBlittingFlags(gfx.BlitNoFx)
	return r.TextureTriangles(ctx, quad, gfx.TriangleFan)
}

func savePNG(m *surface.Manager, s *surface.Surface, path string) error {
	l, err := m.SoftwareLock(s, surface.RoleFront, pool.AccessRead)
	if err != nil {
		return err
	}
	defer func() { _ = m.Unlock(l) }()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, l.Image()); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func printStats(es engine.Stats, ms surface.Stats, ds display.Stats, layer *logLayer) {
	p := message.NewPrinter(language.English)
	p.Printf("engine:  %d tasks, %d commands, weight %d, %d failed\n", es.Run, es.Commands, es.Weight, es.Failed)
	p.Printf("surface: %d software locks, %d hardware locks, %d restores, %d flips\n",
		ms.SoftwareLocks, ms.HardwareLocks, ms.Restores, ms.Flips)
	p.Printf("display: %d tasks, %d swaps, %d copies, %d updates, %d layer calls\n",
		ds.Generated, ds.Swaps, ds.Copies, ds.Updates, layer.calls.Load())
}
