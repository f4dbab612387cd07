package engine

import (
	"fmt"
	"os"
	"strconv"

	"github.com/deniskropp/DirectFB-sub015/gfx"
	"github.com/deniskropp/DirectFB-sub015/internal/parallel"
)

// Default limits.
const (
	// DefaultWeightMax is the weight at which a render task is full.
	DefaultWeightMax = 400000

	// DefaultBufferMax is the encoded command length in bytes at which a
	// render task is full.
	DefaultBufferMax = 64 << 10

	// DefaultChunkSize is the encoded length in bytes after which the
	// current chunk of the command log is closed.
	DefaultChunkSize = 4 << 10

	// DefaultQueueFactor times the number of cores is the number of pushed
	// tasks at which Bind blocks.
	DefaultQueueFactor = 3
)

// Environment variables read by ConfigFromEnv.
const (
	EnvCores     = "FBCORE_CORES"
	EnvWeightMax = "FBCORE_WEIGHT_MAX"
	EnvBufferMax = "FBCORE_BUFFER_MAX"
)

// Weights controls how primitives are charged against WeightMax.
//
// Every recorded rectangle, line, blit or triangle costs
// Base + (area >> AreaShift) << shift, where shift is BlendShift while
// blending is enabled, plus ConvertShift for blits between pixel formats.
type Weights struct {
	Base         int64
	AreaShift    uint
	BlendShift   uint
	ConvertShift uint
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		Base:         10,
		AreaShift:    4,
		BlendShift:   1,
		ConvertShift: 1,
	}
}

// Config holds the engine settings.
type Config struct {
	// Cores is the number of worker goroutines, 1 to parallel.MaxWorkers.
	Cores int

	WeightMax   int64
	BufferMax   int
	ChunkSize   int
	QueueFactor int
	Weights     Weights

	// Driver executes primitives it accepts in hardware. Nil renders
	// everything in software.
	Driver gfx.Driver
}

// DefaultConfig returns the default configuration with two cores.
func DefaultConfig() Config {
	return Config{
		Cores:       2,
		WeightMax:   DefaultWeightMax,
		BufferMax:   DefaultBufferMax,
		ChunkSize:   DefaultChunkSize,
		QueueFactor: DefaultQueueFactor,
		Weights:     DefaultWeights(),
	}
}

// Option configures an Engine.
type Option func(*Config)

// WithConfig replaces the whole configuration, e.g. one from ConfigFromEnv.
func WithConfig(c Config) Option {
	return func(cfg *Config) { *cfg = c }
}

// WithCores sets the number of worker goroutines.
func WithCores(n int) Option {
	return func(c *Config) { c.Cores = n }
}

// WithWeightMax sets the weight limit of one render task.
func WithWeightMax(w int64) Option {
	return func(c *Config) { c.WeightMax = w }
}

// WithBufferMax sets the command length limit of one render task.
func WithBufferMax(n int) Option {
	return func(c *Config) { c.BufferMax = n }
}

// WithChunkSize sets the chunk size of the command log.
func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

// WithQueueFactor sets the admission limit to factor tasks per core.
func WithQueueFactor(factor int) Option {
	return func(c *Config) { c.QueueFactor = factor }
}

// WithWeights sets the weight formula.
func WithWeights(w Weights) Option {
	return func(c *Config) { c.Weights = w }
}

// WithDriver sets the hardware driver.
func WithDriver(d gfx.Driver) Option {
	return func(c *Config) { c.Driver = d }
}

// normalize replaces out of range values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	c.Cores = min(max(c.Cores, 1), parallel.MaxWorkers)
	if c.WeightMax <= 0 {
		c.WeightMax = def.WeightMax
	}
	if c.BufferMax <= 0 {
		c.BufferMax = def.BufferMax
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.QueueFactor <= 0 {
		c.QueueFactor = def.QueueFactor
	}
}

// admission returns the number of pushed tasks at which Bind blocks.
func (c *Config) admission() int {
	return c.Cores * c.QueueFactor
}

// ConfigFromEnv returns the default configuration overridden by
// FBCORE_CORES, FBCORE_WEIGHT_MAX and FBCORE_BUFFER_MAX.
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	if err := envInt(EnvCores, func(v int64) { c.Cores = int(v) }); err != nil {
		return c, err
	}
	if err := envInt(EnvWeightMax, func(v int64) { c.WeightMax = v }); err != nil {
		return c, err
	}
	if err := envInt(EnvBufferMax, func(v int64) { c.BufferMax = int(v) }); err != nil {
		return c, err
	}
	return c, nil
}

func envInt(name string, set func(int64)) error {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("engine: %s: %w", name, err)
	}
	if v <= 0 {
		return fmt.Errorf("engine: %s must be positive, got %d", name, v)
	}
	set(v)
	return nil
}
