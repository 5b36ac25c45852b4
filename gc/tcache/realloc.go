package tcache

import (
	"github.com/analogjupiter/d-compiler/gc/emap"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// Realloc implements the decision table of spec.md §4.C.4 (R0-R7). Rows
// are checked in order; the first satisfied row's action is taken.
func (tc *ThreadCache) Realloc(ptr uintptr, size uint, containsPointers bool) uintptr {
	// R0: size == 0 -> free, return null.
	if size == 0 {
		tc.Free(ptr)
		return 0
	}

	// R1: size not allocatable -> return null.
	if !sizeclass.IsAllocatableSize(size) {
		return 0
	}

	// R2: ptr == null -> delegate to alloc.
	if ptr == 0 {
		return tc.Alloc(size, containsPointers)
	}

	pd := tc.emap.Lookup(ptr)
	if !pd.Mapped() {
		return 0
	}

	if pd.Kind == emap.KindSlab {
		return tc.reallocSlab(ptr, pd, size, containsPointers)
	}
	return tc.reallocLarge(ptr, pd, size, containsPointers)
}

func (tc *ThreadCache) reallocSlab(ptr uintptr, pd emap.PageDescriptor, size uint, containsPointers bool) uintptr {
	oldClass := pd.Slab.SizeClass
	extra := uint(0)
	if pd.Slab.Finalizer != nil {
		extra = sizeclass.PointerSize
	}
	needed := size + extra

	if sizeclass.IsSmallSize(needed) {
		newClass := sizeclass.GetSizeClass(needed)

		// R3: same size class, same pointerness, the new usedCapacity
		// still fits the slot -> update in place.
		if newClass == oldClass && containsPointers == pd.ContainsPointers {
			pd.Slab.UsedCapacity = size
			return ptr
		}

		// R4: size class shrinks -> copy getSizeFromClass(oldSizeClass)
		// bytes, clamped to what the new (smaller) slot can actually
		// hold so the copy never overruns the destination.
		if newClass < oldClass {
			oldSlotSize := sizeclass.GetSizeFromClass(oldClass)
			return tc.reallocCopy(ptr, pd, size, containsPointers, oldSlotSize)
		}
	}

	// R7 (catch-all): grown into a different class, grown into a large
	// extent, pointerness changed, or metadata no longer fits.
	copySize := pd.Slab.UsedCapacity
	if copySize == 0 {
		copySize = sizeclass.GetSizeFromClass(oldClass)
	}
	return tc.reallocCopy(ptr, pd, size, containsPointers, copySize)
}

func (tc *ThreadCache) reallocLarge(ptr uintptr, pd emap.PageDescriptor, size uint, containsPointers bool) uintptr {
	if containsPointers == pd.ContainsPointers {
		// R5: the new size already page-aligns to the current extent, or
		// an in-place resize succeeds -> update usedCapacity, same
		// pointer.
		if alignUp(size, sizeclass.PageSize) == pd.Large.Size {
			pd.Large.UsedCapacity = size
			return ptr
		}
		if tc.resolveArena(pd).ResizeLarge(tc.emap, ptr, size) {
			pd.Large.UsedCapacity = size
			return ptr
		}
	}

	// R6: large, otherwise -> copy min(size, oldUsedCapacity) bytes.
	copySize := pd.Large.UsedCapacity
	if copySize == 0 {
		copySize = pd.Large.Size
	}
	return tc.reallocCopy(ptr, pd, size, containsPointers, copySize)
}

// reallocCopy is the shared R7 tail: allocate size bytes fresh, copy at
// most copySize bytes from ptr, propagate usedCapacity onto the new large
// extent (per spec.md §4.C.4, only for the large case), then free ptr.
func (tc *ThreadCache) reallocCopy(ptr uintptr, pd emap.PageDescriptor, size uint, containsPointers bool, copySize uint) uintptr {
	newPtr := tc.Alloc(size, containsPointers)
	if newPtr == 0 {
		return 0
	}

	n := copySize
	if size < n {
		n = size
	}
	memcpy(newPtr, ptr, n)

	if pd.Kind == emap.KindLarge {
		if newPD := tc.emap.Lookup(newPtr); newPD.Kind == emap.KindLarge {
			newPD.Large.UsedCapacity = n
		}
	}

	tc.Free(ptr)
	return newPtr
}
