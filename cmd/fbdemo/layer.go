package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	fbcore "github.com/deniskropp/DirectFB-sub015"
	"github.com/deniskropp/DirectFB-sub015/display"
	"github.com/deniskropp/DirectFB-sub015/pool"
)

// logLayer is a display layer that logs what it would scan out.
type logLayer struct {
	calls atomic.Uint64
}

func (l *logLayer) FlipRegion(r *display.Region, left, _ *pool.Lock, flags display.FlipFlags) error {
	l.calls.Add(1)
	fbcore.Logger().Debug("layer flip", "layer", r.Layer(), "alloc", left.Allocation.ID(), "flags", flags)
	return nil
}

func (l *logLayer) UpdateRegion(r *display.Region, left, _ *pool.Lock, u display.Update) error {
	l.calls.Add(1)
	fbcore.Logger().Debug("layer update", "layer", r.Layer(), "alloc", left.Allocation.ID(), "rect", u.Left)
	return nil
}

// WaitVSync simulates a 60 Hz display.
func (l *logLayer) WaitVSync(ctx context.Context) error {
	select {
	case <-time.After(time.Second / 60):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogValue reports the number of driver calls.
func (l *logLayer) LogValue() slog.Value {
	return slog.GroupValue(slog.Uint64("calls", l.calls.Load()))
}
