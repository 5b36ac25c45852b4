// Package emap defines the ExtentMap collaborator interface (spec.md §6):
// the address -> PageDescriptor lookup oracle that sits between
// gc/tcache and the (out-of-scope) arena/radix-tree extent map
// implementation. It also defines PageDescriptor itself and the
// slab/large-extent metadata gc/tcache relies on.
//
// The radix-tree extent map described in spec.md §1 ("mapping
// page-aligned addresses -> page descriptors") is explicitly named as an
// out-of-scope collaborator; only the lookup contract is specified here.
package emap

// Kind discriminates a PageDescriptor between a slab (small-object) extent
// and a large (page-granularity) extent.
type Kind int

const (
	// KindNone marks an unmapped address: the sentinel PageDescriptor
	// returned by an ExtentMap when an address is not part of any live
	// extent.
	KindNone Kind = iota
	KindSlab
	KindLarge
)

// Finalizer is a user callback invoked when a destroy request is issued
// for an allocation carrying one. Typed as a nullable function value
// rather than a polymorphic callable, per spec.md §9.
type Finalizer func(ptr uintptr, usedCapacity uint)

// SlabAllocInfo is the per-slot metadata trailer gc/tcache reads and
// writes for a small allocation, present iff its size class supports
// metadata (sizeclass.SizeClassSupportsMetadata).
type SlabAllocInfo struct {
	// Address is the slot's base address, used by ThreadCache.Destroy to
	// reject interior-pointer destroy calls.
	Address uintptr

	SizeClass    uint
	Finalizer    Finalizer
	UsedCapacity uint
}

// LargeExtentInfo is the header of a large (page-granularity) allocation.
type LargeExtentInfo struct {
	Size         uint
	UsedCapacity uint
	Finalizer    Finalizer
}

// PageDescriptor is what an ExtentMap's Lookup returns for a page-aligned
// address: which arena served it, which kind of extent it belongs to, and
// the extent's own metadata.
type PageDescriptor struct {
	Kind Kind

	// Arena identifies which arena instance owns this page (opaque to
	// this package; gc/tcache routes free/destroy calls back through it).
	Arena any

	ContainsPointers bool

	// Exactly one of Slab/Large is meaningful, selected by Kind. Both are
	// pointers into the extent's own trailer/header storage (per §3: slab
	// metadata lives in "a per-slot trailer", large metadata "in the
	// extent header") rather than copies, so a ThreadCache can update
	// UsedCapacity in place after a Lookup without a separate write-back
	// call.
	Slab  *SlabAllocInfo
	Large *LargeExtentInfo
}

// Mapped reports whether this descriptor refers to a live extent.
func (d PageDescriptor) Mapped() bool {
	return d.Kind != KindNone
}

// ExtentMap is the core-to-extent-map interface (spec.md §6): a single
// process-wide shared structure, accessed by gc/tcache through a
// thread-local cache of it. Lookup returns a zero-valued PageDescriptor
// (Kind == KindNone) for an address not covered by any live extent; it
// never returns an error, matching spec.md §7 (nothing here is a
// recoverable-error condition, only "mapped" or "not mapped").
type ExtentMap interface {
	// Lookup resolves the page-aligned address containing addr to its
	// PageDescriptor.
	Lookup(addr uintptr) PageDescriptor
}
