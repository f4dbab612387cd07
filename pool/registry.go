package pool

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"
)

// registry holds named backend factories. Accelerator memory is preferred
// over shared memory, which is preferred over the process heap.
var registry = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority("halpool", "shm", "heap"),
)

// Register makes a backend factory available under name.
// Backend packages call it from init:
//
//	func init() {
//	    pool.Register("heap", func() pool.Backend { return heap.New(0) })
//	}
func Register(name string, factory func() Backend) {
	registry.Register(name, factory)
}

// Unregister removes a backend factory.
func Unregister(name string) {
	registry.Unregister(name)
}

// Backends returns the names of all registered backends.
func Backends() []string {
	return registry.Available()
}

// Open creates a pool from the backend registered under name.
func Open(ctx context.Context, name string) (*Pool, error) {
	if !registry.Has(name) {
		return nil, fmt.Errorf("pool: unknown backend %q", name)
	}
	return New(ctx, registry.Get(name))
}

// OpenBest creates a pool from the highest priority registered backend.
func OpenBest(ctx context.Context) (*Pool, error) {
	name := registry.BestName()
	if name == "" {
		return nil, fmt.Errorf("pool: no backends registered")
	}
	return Open(ctx, name)
}
