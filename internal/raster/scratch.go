package raster

import (
	"image"
	"sync"

	"github.com/deniskropp/DirectFB-sub015/pixel"
)

// scratchPool reuses temporary images of identical size and format.
//
// Safe for concurrent use.
type scratchPool struct {
	mu      sync.Mutex
	buckets map[scratchKey][][]byte
	maxSize int
}

type scratchKey struct {
	format        pixel.Format
	width, height int
}

func newScratchPool(maxPerBucket int) *scratchPool {
	return &scratchPool{
		buckets: make(map[scratchKey][][]byte),
		maxSize: maxPerBucket,
	}
}

// get returns an image covering r. Its pixels are undefined; callers
// overwrite all of them.
func (p *scratchPool) get(f pixel.Format, r image.Rectangle, pal *pixel.Palette) *pixel.Image {
	key := scratchKey{format: f, width: r.Dx(), height: r.Dy()}

	p.mu.Lock()
	var mem []byte
	if bucket := p.buckets[key]; len(bucket) > 0 {
		mem = bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
	}
	p.mu.Unlock()

	if mem == nil {
		mem = make([]byte, f.Size(key.width, key.height))
	}
	return &pixel.Image{
		Pix:     mem,
		Pitch:   f.Pitch(key.width),
		Format:  f,
		Rect:    r,
		Palette: pal,
	}
}

func (p *scratchPool) put(m *pixel.Image) {
	if m == nil || m.Pix == nil {
		return
	}
	key := scratchKey{format: m.Format, width: m.Rect.Dx(), height: m.Rect.Dy()}

	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, m.Pix)
}

// len returns the number of retained buffers.
func (p *scratchPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

var scratch = newScratchPool(4)

// Release returns an image obtained from Snapshot for reuse. The image
// must not be used afterwards.
func Release(m *pixel.Image) {
	scratch.put(m)
}
