// Package tcache implements the per-thread allocator façade (spec.md §4.C,
// component D): size classification, arena dispatch, finalizer-aware
// free/destroy, appendable-slice semantics, and the conservative-scan
// entry points. Grounded on the teacher's mcache.go (one cache per P,
// refill/releaseAll) and malloc.go's small/large dispatch, collapsed from
// Go's three-level mcache/mcentral/mheap split down to a single per-thread
// cache talking directly to an Arena — that split is the out-of-scope
// Arena collaborator's business, not this package's.
package tcache

import (
	"log/slog"
	"unsafe"

	"github.com/analogjupiter/d-compiler/gc/arena"
	"github.com/analogjupiter/d-compiler/gc/emap"
	"github.com/analogjupiter/d-compiler/gc/gcassert"
	"github.com/analogjupiter/d-compiler/gc/platform"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// RootRange is a conservatively-scanned address range registered by the
// mutator (spec.md §4.C.6).
type RootRange struct {
	Start uintptr
	Stop  uintptr
}

// ThreadCache is the per-thread allocator front end. One is created per
// mutator thread; it is not safe for concurrent use by multiple threads; a
// host embedding this library owns that invariant the same way the
// teacher's per-P mcache does. A host typically keeps one ThreadCache per
// OS thread packed into a contiguous slice (mirroring the teacher's
// per-P allprocs-style array of mcache); the trailing CacheLinePad stops
// one thread's writes to its own hot fields (roots growth, stackBottom)
// from dirtying the cache line backing the next slot's fields.
type ThreadCache struct {
	registry arena.Registry
	emap     emap.ExtentMap

	// stackBottom is the highest address of this thread's stack, the
	// upper bound of the conservative range scanned by Collect.
	stackBottom uintptr

	rootsPtr uintptr
	rootsLen uint
	rootsCap uint

	logger *slog.Logger

	_ platform.CacheLinePad
}

// New builds a ThreadCache bound to registry (the arena collaborator) and
// em (the extent-map collaborator), for a mutator whose stack grows down
// from stackBottom.
func New(registry arena.Registry, em emap.ExtentMap, stackBottom uintptr) *ThreadCache {
	return &ThreadCache{
		registry:    registry,
		emap:        em,
		stackBottom: stackBottom,
		logger:      slog.Default(),
	}
}

// arenaFor resolves the arena serving (current CPU, containsPointers),
// per spec.md §4.C.1: the low bit of the class partitions pointer-bearing
// from pointer-free storage so a collection pass can scan only pointer
// arenas.
func (tc *ThreadCache) arenaFor(containsPointers bool) arena.Arena {
	class := arena.ArenaClass(platform.CPUID(), containsPointers)
	return tc.registry.GetOrInitialize(class)
}

// resolveArena recovers the Arena instance a PageDescriptor was registered
// against, so free/destroy calls route back through the same arena an
// alloc came from.
func (tc *ThreadCache) resolveArena(pd emap.PageDescriptor) arena.Arena {
	a, ok := pd.Arena.(arena.Arena)
	gcassert.Check(ok, "page descriptor arena field %T is not an arena.Arena", pd.Arena)
	return a
}

// Alloc serves a plain (non-appendable) allocation of size bytes. It
// returns 0 (the null-pointer sentinel) for an unsatisfiable size or an
// out-of-memory arena; it never panics for these, per spec.md §7.
func (tc *ThreadCache) Alloc(size uint, containsPointers bool) uintptr {
	if !sizeclass.IsAllocatableSize(size) {
		return 0
	}
	a := tc.arenaFor(containsPointers)
	if sizeclass.IsSmallSize(size) {
		return a.AllocSmall(tc.emap, size)
	}
	return a.AllocLarge(tc.emap, size, false)
}

// AllocAppendable serves an allocation that carries live usedCapacity and
// an optional finalizer, per spec.md §4.C.2. If finalizer is non-nil, room
// for a trailing finalizer pointer is reserved and the chosen size class
// must support metadata (a contract violation otherwise: a caller asking
// for a finalizer on a size class too small to hold one is a bug, not an
// allocation failure).
func (tc *ThreadCache) AllocAppendable(size uint, containsPointers bool, finalizer emap.Finalizer) uintptr {
	extra := uint(0)
	if finalizer != nil {
		extra = sizeclass.PointerSize
	}
	asize := sizeclass.GetAllocSize(alignUp(size+extra, 2*sizeclass.Quantum))
	if !sizeclass.IsAllocatableSize(asize) {
		return 0
	}

	if sizeclass.IsSmallSize(asize) {
		sc := sizeclass.GetSizeClass(asize)
		gcassert.Check(sizeclass.SizeClassSupportsMetadata(sc),
			"allocAppendable: size class %d has no room for metadata", sc)
	}

	ptr := tc.Alloc(asize, containsPointers)
	if ptr == 0 {
		return 0
	}

	pd := tc.emap.Lookup(ptr)
	gcassert.Check(pd.Mapped(), "allocAppendable: arena returned an address with no extent-map entry")

	switch pd.Kind {
	case emap.KindSlab:
		pd.Slab.Finalizer = finalizer
		pd.Slab.UsedCapacity = size
	case emap.KindLarge:
		pd.Large.Finalizer = finalizer
		pd.Large.UsedCapacity = size
	}
	return ptr
}

// Free returns ptr to its arena. Free(0) is a no-op, matching spec.md
// §4.C.3.
func (tc *ThreadCache) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	pd := tc.emap.Lookup(ptr)
	if !pd.Mapped() {
		return
	}
	tc.resolveArena(pd).Free(tc.emap, pd, ptr)
}

// Destroy runs ptr's finalizer, if any, then frees it (spec.md §4.C.3). A
// slab destroy on an interior pointer (ptr != the slot's base address) is
// a contract violation, not a recoverable error.
func (tc *ThreadCache) Destroy(ptr uintptr) {
	if ptr == 0 {
		return
	}
	pd := tc.emap.Lookup(ptr)
	if !pd.Mapped() {
		return
	}

	switch pd.Kind {
	case emap.KindSlab:
		gcassert.Check(ptr == pd.Slab.Address,
			"destroy: interior pointer %#x (slot base %#x)", ptr, pd.Slab.Address)
		if pd.Slab.Finalizer != nil {
			pd.Slab.Finalizer(ptr, pd.Slab.UsedCapacity)
		}
	case emap.KindLarge:
		if pd.Large.Finalizer != nil {
			pd.Large.Finalizer(ptr, pd.Large.UsedCapacity)
		}
	}

	tc.resolveArena(pd).Free(tc.emap, pd, ptr)
}

func alignUp(n, align uint) uint {
	return (n + align - 1) &^ (align - 1)
}

// memcpy copies n bytes from src to dst. Both must be live addresses
// backed by real memory; its callers, realloc's copy paths and growRoots,
// only pass addresses they got back from Arena calls.
func memcpy(dst, src uintptr, n uint) {
	if n == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(dstSlice, srcSlice)
}
