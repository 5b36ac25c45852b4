package tcache

import (
	"github.com/analogjupiter/d-compiler/gc/emap"
	"github.com/analogjupiter/d-compiler/gc/gcassert"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// Slice describes a view [Address+Start, Address+Stop) into an allocation,
// the unit spec.md §4.C.5's slice-capacity contract is defined over.
type Slice struct {
	Address uintptr
	Start   uint
	Stop    uint
}

// GetCapacity implements spec.md §4.C.5: a slice is appendable only when
// its end coincides with the allocation's live usedCapacity. Any pointer
// not mapped by the extent map, and any slice whose Stop is 0 or short of
// usedCapacity, reports capacity 0.
func (tc *ThreadCache) GetCapacity(s Slice) uint {
	if s.Stop == 0 {
		return 0
	}
	pd := tc.emap.Lookup(s.Address)
	if !pd.Mapped() {
		return 0
	}

	var storageSize, used uint
	switch pd.Kind {
	case emap.KindSlab:
		storageSize = slabStorageSize(pd)
		used = pd.Slab.UsedCapacity
	case emap.KindLarge:
		storageSize = pd.Large.Size
		used = pd.Large.UsedCapacity
	default:
		return 0
	}

	if s.Stop != used || s.Start > storageSize {
		return 0
	}
	return storageSize - s.Start
}

// Extend implements spec.md §4.C.5. delta == 0 always succeeds, even on
// non-appendable or unmapped memory. Otherwise the slice must currently
// have nonzero capacity; usedCapacity grows by delta, growing the backing
// large extent in place via the arena when it no longer fits within the
// current extent size. Over-extending a slab slot that carries a finalizer
// is a fatal contract violation; any other extension that does not fit
// returns false.
func (tc *ThreadCache) Extend(s Slice, delta uint) bool {
	if delta == 0 {
		return true
	}
	if tc.GetCapacity(s) == 0 {
		return false
	}

	pd := tc.emap.Lookup(s.Address)
	gcassert.Check(pd.Mapped(), "extend: capacity check passed against an address with no extent")

	if delta > ^uint(0)-s.Stop {
		// delta is absurd enough that s.Stop + delta would wrap; no real
		// extent is ever this large, so this is a bad request, not a
		// success deserving a wrapped, silently-truncated usedCapacity.
		return false
	}
	newUsed := s.Stop + delta

	switch pd.Kind {
	case emap.KindSlab:
		if newUsed > slabStorageSize(pd) {
			gcassert.Check(pd.Slab.Finalizer == nil,
				"extend: %d bytes over-extends finalized slot %#x", newUsed, pd.Slab.Address)
			return false
		}
		pd.Slab.UsedCapacity = newUsed
		return true
	case emap.KindLarge:
		if newUsed > pd.Large.Size {
			// ResizeLarge is responsible for updating pd.Large.Size on
			// success; this cache only tracks usedCapacity.
			if !tc.resolveArena(pd).ResizeLarge(tc.emap, s.Address, newUsed) {
				return false
			}
		}
		pd.Large.UsedCapacity = newUsed
		return true
	}
	return false
}

// slabStorageSize is the usable payload capacity of a slab slot: its full
// class size, minus the trailing pointer reserved for a finalizer when the
// allocation carries one (spec.md §4.C.2's asize computation reserves that
// tail; capacity/extend must never claim it as payload space).
func slabStorageSize(pd emap.PageDescriptor) uint {
	slot := sizeclass.GetSizeFromClass(pd.Slab.SizeClass)
	if pd.Slab.Finalizer != nil {
		return slot - sizeclass.PointerSize
	}
	return slot
}
