// Package arena defines the core-to-arena interface (spec.md §6): the
// abstract collaborator consulted by gc/tcache for every alloc/free/
// realloc, documented here purely as a contract. The concrete arena
// (allocSmall/allocLarge/resizeLarge/free, backed by a
// block.PriorityBlockHeap per (cpu, pointerness) class and the OS
// huge-page mmap/madvise layer) is explicitly out of scope (spec.md §1):
// "treated as an abstract allocator interface with a documented
// contract".
package arena

import "github.com/analogjupiter/d-compiler/gc/emap"

// Arena is the abstract allocator collaborator a ThreadCache dispatches
// to once it has classified a request and picked an arena by
// (cpu, containsPointers).
type Arena interface {
	// AllocSmall serves a small (slab) allocation of size bytes,
	// registering the result with em. It returns 0 on out-of-memory.
	AllocSmall(em emap.ExtentMap, size uint) uintptr

	// AllocLarge serves a large (page-granularity) allocation of size
	// bytes, registering the result with em. If zero is true the
	// returned memory is zero-filled. It returns 0 on out-of-memory.
	AllocLarge(em emap.ExtentMap, size uint, zero bool) uintptr

	// Free returns ptr (described by pd) to the arena. ptr must have come
	// from a prior AllocSmall/AllocLarge on this arena.
	Free(em emap.ExtentMap, pd emap.PageDescriptor, ptr uintptr)

	// ResizeLarge attempts to grow or shrink a large extent in place to
	// newSize without moving it. It returns true iff the extent was
	// resized in place; on false, the extent is left unchanged (spec.md
	// §9 Open Questions: this is the assumption a conforming arena must
	// uphold, to be confirmed against any real implementation).
	ResizeLarge(em emap.ExtentMap, extent uintptr, newSize uint) bool
}

// GetOrInitialize resolves the arena for class = (cpuID << 1) |
// containsPointers; the low bit partitions pointer-bearing from
// pointer-free storage so a collector pass can scan only pointer arenas.
// Hosts implement this alongside Arena to vend one instance per class.
type Registry interface {
	GetOrInitialize(class uint) Arena
}

// ArenaClass packs a CPU id and a pointerness flag into the class key
// Registry.GetOrInitialize expects, per spec.md §4.C.1.
func ArenaClass(cpuID uint, containsPointers bool) uint {
	class := cpuID << 1
	if containsPointers {
		class |= 1
	}
	return class
}
