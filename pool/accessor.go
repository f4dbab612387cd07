package pool

import "fmt"

// Accessor identifies a consumer of allocation memory.
// The CPU and the GPU are fixed accessors; every display layer is its own
// accessor starting at AccessorLayer0.
type Accessor uint8

const (
	// AccessorCPU is software running on the host processor.
	AccessorCPU Accessor = iota

	// AccessorGPU is the graphics accelerator.
	AccessorGPU

	// AccessorLayer0 is the first display layer. Use Layer(n) for others.
	AccessorLayer0
)

// Layer returns the accessor of display layer n.
func Layer(n int) Accessor {
	return AccessorLayer0 + Accessor(n)
}

// IsLayer reports whether a is a display layer accessor.
func (a Accessor) IsLayer() bool {
	return a >= AccessorLayer0
}

// String returns a readable accessor name.
func (a Accessor) String() string {
	switch a {
	case AccessorCPU:
		return "CPU"
	case AccessorGPU:
		return "GPU"
	default:
		return fmt.Sprintf("Layer%d", int(a-AccessorLayer0))
	}
}

// Access is a set of access rights.
type Access uint8

const (
	// AccessRead allows reading allocation memory.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing allocation memory.
	AccessWrite

	// AccessShared allows the memory to be mapped by other processes.
	AccessShared
)

// AccessReadWrite is the combination used by most locks.
const AccessReadWrite = AccessRead | AccessWrite

// Has reports whether a contains every right in want.
func (a Access) Has(want Access) bool {
	return a&want == want
}

// String returns the rights as "rws" style flags.
func (a Access) String() string {
	b := []byte("---")
	if a&AccessRead != 0 {
		b[0] = 'r'
	}
	if a&AccessWrite != 0 {
		b[1] = 'w'
	}
	if a&AccessShared != 0 {
		b[2] = 's'
	}
	return string(b)
}

// MemoryKind tells whether a pool lives in system or accelerator memory.
type MemoryKind uint8

const (
	// KindSystem is ordinary host memory.
	KindSystem MemoryKind = iota

	// KindVideo is memory owned by the graphics accelerator.
	KindVideo
)

// String returns "system" or "video".
func (k MemoryKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "system"
}
