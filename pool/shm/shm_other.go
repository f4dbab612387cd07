//go:build !linux

package shm

import (
	"context"
	"image"

	"github.com/deniskropp/DirectFB-sub015/pool"
)

// Backend is unavailable on this platform.
type Backend struct{}

// New returns a backend whose Init always fails.
func New(int64) *Backend { return &Backend{} }

func (*Backend) Init(context.Context) (pool.Description, error) {
	return pool.Description{}, pool.ErrUnsupported
}
func (*Backend) TestConfig(pool.Config) error { return pool.ErrUnsupported }
func (*Backend) Allocate(*pool.Allocation) error { return pool.ErrUnsupported }
func (*Backend) Deallocate(*pool.Allocation) error { return nil }
func (*Backend) Lock(*pool.Allocation, pool.Accessor, pool.Access) (pool.Mapping, error) {
	return pool.Mapping{}, pool.ErrUnsupported
}
func (*Backend) Unlock(*pool.Allocation, pool.Accessor, pool.Access) error { return nil }
func (*Backend) Read(*pool.Allocation, []byte, int, image.Rectangle) error {
	return pool.ErrUnsupported
}
func (*Backend) Write(*pool.Allocation, []byte, int, image.Rectangle) error {
	return pool.ErrUnsupported
}
func (*Backend) Close() error { return nil }
