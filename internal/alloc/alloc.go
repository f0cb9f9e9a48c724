// Package alloc is the memory allocator collaborator named in spec §6:
// "raw_alloc(size) -> pointer | null, plus its init routine." The
// allocator's internals are explicitly out of scope; the scheduler only
// ever needs to know whether a TCB/VM allocation succeeded.
package alloc

// Allocator is the minimal surface the scheduler depends on.
type Allocator interface {
	// Init prepares the allocator. Called once before any RawAlloc.
	Init() error
	// RawAlloc returns size bytes of zeroed memory, or nil if the request
	// could not be satisfied (spec §7: "Out of memory" surfaces here,
	// never as a panic).
	RawAlloc(size int) []byte
}

// Heap is a Go-runtime-backed Allocator: it just asks the Go garbage
// collector for memory, since this module's target is a hosted build
// rather than the bare-metal allocator a real microcontroller firmware
// would need (out of scope per spec §1).
type Heap struct{}

func (Heap) Init() error { return nil }

func (Heap) RawAlloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	return make([]byte, size)
}
