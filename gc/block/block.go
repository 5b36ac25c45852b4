// Package block implements the per-huge-page block descriptor (spec.md
// §4.B) and the priority-ordered collections that hold it (§4.C): a
// fixed-granularity page-range manager tracking allocated/dirty pages, the
// longest free run, and a packed allocation-score priority key used to
// choose which block an arena should allocate from next.
//
// Grounded on mpagealloc.go/mpagealloc_64bit.go's summary-driven free-run
// search and mheap.go's allocCount-weighted span ordering, adapted from
// Go's multi-tier radix-summary page allocator down to the single
// 2 MiB/512-page granularity spec.md names (the radix-tree-of-chunks
// structure above a single block is the out-of-scope ExtentMap
// collaborator).
package block

import (
	"github.com/analogjupiter/d-compiler/gc/bitmap"
	"github.com/analogjupiter/d-compiler/gc/gcassert"
	"github.com/analogjupiter/d-compiler/gc/gcconfig"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// PagesInBlock is the number of PageSize pages managed by one
// BlockDescriptor.
const PagesInBlock = sizeclass.PagesInBlock

// BlockDescriptor manages one 2 MiB huge page divided into PagesInBlock
// pages. The zero value is not usable; construct with FromPage.
type BlockDescriptor struct {
	allocatedPages *bitmap.Bitmap
	dirtyPages     *bitmap.Bitmap

	usedCount  uint
	dirtyCount uint

	bits       PriorityKey
	generation uint32

	// heapIndex is the single intrusive-collection slot shared by
	// PriorityBlockHeap and UnusedBlockHeap. A descriptor is in exactly
	// one of the two collections at a time; whichever heap currently
	// owns it is the sole interpreter of this field. It is not
	// meaningful outside of a heap.
	heapIndex int

	// address is the block's base address, as supplied to FromPage. Only
	// its packed (>>LgBlockSize) form is load-bearing for ordering; the
	// full address is kept so callers can recover it.
	address uint64
}

// FromPage constructs a BlockDescriptor for the block based at address,
// which must be aligned to BlockSize. The block starts out entirely free.
func FromPage(address uint64) *BlockDescriptor {
	if address&(sizeclass.BlockSize-1) != 0 {
		gcassert.Fatal("block: address %#x is not %d-byte aligned", address, uint(sizeclass.BlockSize))
	}
	packed := address >> sizeclass.LgBlockSize
	return &BlockDescriptor{
		allocatedPages: bitmap.New(PagesInBlock),
		dirtyPages:     bitmap.New(PagesInBlock),
		bits:           newPriorityKey(packed, PagesInBlock),
		address:        address,
		heapIndex:      -1,
	}
}

// Address returns the block's base address.
func (d *BlockDescriptor) Address() uint64 { return d.address }

// UsedCount returns the number of pages currently part of a live
// allocation.
func (d *BlockDescriptor) UsedCount() uint { return d.usedCount }

// DirtyCount returns the number of pages that have been written since
// last returned to the OS.
func (d *BlockDescriptor) DirtyCount() uint { return d.dirtyCount }

// Generation returns the recycle epoch counter.
func (d *BlockDescriptor) Generation() uint32 { return d.generation }

// LongestFreeRange returns the block's current LFR estimate, in pages. It
// over-approximates the true longest run of free pages and becomes exact
// whenever Reserve or GrowAt consumes the longest run.
func (d *BlockDescriptor) LongestFreeRange() uint { return d.bits.LFR() }

// PriorityBits returns the packed priority key, for use by
// PriorityBlockHeap.
func (d *BlockDescriptor) PriorityBits() PriorityKey { return d.bits }

// AllocCount returns the number of live (separately reserved, not yet
// released) allocations in this block, recovered from the packed score
// field: PagesInBlock - score.
func (d *BlockDescriptor) AllocCount() uint { return PagesInBlock - d.bits.Score() }

// Reserve finds a run of at least pages free pages using best-fit
// (shortest sufficient run, ties broken by lowest index) and marks it
// allocated. The caller must ensure 0 < pages <= LongestFreeRange(); this
// is enforced by a fatal assertion rather than a returned error, per
// spec.md's precondition-violation handling (§7).
//
// It returns the index of the first page in the chosen run.
func (d *BlockDescriptor) Reserve(pages uint) uint {
	gcassert.Check(pages > 0 && pages <= d.bits.LFR(), "block: Reserve(%d) violates precondition (LFR=%d)", pages, d.bits.LFR())

	var bestIndex, bestLength uint
	var haveBest bool
	var longestLength, secondLongestLen uint
	prevLFR := d.bits.LFR()

	for start := uint(0); ; {
		idx, length, ok := d.allocatedPages.NextFreeRange(start)
		if !ok {
			break
		}

		if length >= pages && (!haveBest || length < bestLength) {
			bestIndex, bestLength = idx, length
			haveBest = true
		}

		if length > longestLength {
			secondLongestLen = longestLength
			longestLength = length
		} else if length > secondLongestLen {
			secondLongestLen = length
		}

		start = idx + length
	}

	gcassert.Check(haveBest, "block: Reserve(%d) found no eligible run", pages)

	d.bits = d.bits.decrementScore()
	d.registerAllocation(bestIndex, pages)

	if bestLength == prevLFR {
		newLFR := longestLength - pages
		if secondLongestLen > newLFR {
			newLFR = secondLongestLen
		}
		d.updateLongestFreeRange(newLFR)
	}

	d.checkLongestFreeRangeInvariant()

	return bestIndex
}

// GrowAt attempts to extend the allocation whose right edge is at index by
// pages more pages. It returns false without mutating anything if the
// free run starting at index is too short.
func (d *BlockDescriptor) GrowAt(index, pages uint) bool {
	free := d.allocatedPages.FindSet(index) - index
	if free < pages {
		return false
	}

	consumedLFR := free == d.bits.LFR()
	d.registerAllocation(index, pages)

	if consumedLFR {
		d.updateLongestFreeRange(d.rescanLongestFreeRange())
	}

	d.checkLongestFreeRangeInvariant()

	return true
}

// Clear marks [index, index+pages) free again and widens the candidate
// LFR to the surrounding free run, updating the cached LFR only if the
// widened run is longer than the current estimate (the LFR is a monotone
// upper bound, made exact again by Reserve/GrowAt when they consume it).
// Clear does not affect the allocation count; use Release for that.
func (d *BlockDescriptor) Clear(index, pages uint) {
	gcassert.Check(d.allocatedPages.CountBits(index, pages) == pages, "block: Clear(%d,%d) on a range that is not fully allocated", index, pages)

	d.allocatedPages.ClearRange(index, pages)
	d.usedCount -= pages

	start := uint(0)
	if back := d.allocatedPages.FindSetBackward(int(index)); back >= 0 {
		start = uint(back) + 1
	}
	stop := d.allocatedPages.FindSet(index + pages - 1)

	if candidate := stop - start; candidate > d.bits.LFR() {
		d.updateLongestFreeRange(candidate)
	}
}

// Release clears [index, index+pages) and decrements the live allocation
// count (the packed score increments by one unit). Use this, not Clear
// directly, whenever an entire allocation is being freed.
func (d *BlockDescriptor) Release(index, pages uint) {
	d.Clear(index, pages)
	d.bits = d.bits.incrementScore()
}

// Recycle resets the block to entirely free and bumps its generation
// epoch, for reuse from the UnusedBlockHeap. spec.md's Open Questions flag
// the reference's 8-bit generation field as not handling wraparound;
// generation is a uint32 here (see unusedKey), so it never wraps in
// practice.
func (d *BlockDescriptor) Recycle() {
	d.allocatedPages = bitmap.New(PagesInBlock)
	d.dirtyPages = bitmap.New(PagesInBlock)
	d.usedCount = 0
	d.dirtyCount = 0
	d.generation++
	packed := d.bits.PackedAddress()
	d.bits = newPriorityKey(packed, PagesInBlock)
}

// registerAllocation sets the allocated bits for [index, index+pages),
// updates usedCount, and marks the range dirty without double-counting
// pages that were already dirty from a previous occupant.
func (d *BlockDescriptor) registerAllocation(index, pages uint) {
	d.allocatedPages.SetRange(index, pages)
	d.usedCount += pages

	alreadyDirty := d.dirtyPages.CountBits(index, pages)
	d.dirtyCount += pages - alreadyDirty
	d.dirtyPages.SetRange(index, pages)
}

// rescanLongestFreeRange recomputes the true LFR by scanning the whole
// block. Used after GrowAt consumes the cached LFR, since growth can
// happen anywhere in the block and a local widening (as in Clear) isn't
// sufficient to recover the new true maximum.
func (d *BlockDescriptor) rescanLongestFreeRange() uint {
	var longest uint
	for start := uint(0); ; {
		idx, length, ok := d.allocatedPages.NextFreeRange(start)
		if !ok {
			break
		}
		if length > longest {
			longest = length
		}
		start = idx + length
	}
	return longest
}

// updateLongestFreeRange is the single writer of the LFR(+class) subfield
// of the priority key; every allocation path that changes the longest run
// must call it, so the rest of the packed key stays monotone.
func (d *BlockDescriptor) updateLongestFreeRange(lfr uint) {
	d.bits = d.bits.withLFR(lfr)
}

// checkLongestFreeRangeInvariant is the expensive invariant re-check
// gcconfig.Vars.Assertions enables: a full rescan of the allocated-pages
// bitmap, cross-checked against the cached LFR field. It is a no-op unless
// SDGC's assertions=1 is set, since rescanLongestFreeRange is O(block
// size) and every other caller of Reserve/GrowAt relies on the cached LFR
// being cheap to read.
func (d *BlockDescriptor) checkLongestFreeRangeInvariant() {
	if !gcconfig.Current().Assertions {
		return
	}
	actual := d.rescanLongestFreeRange()
	gcassert.Check(d.bits.LFR() >= actual,
		"block: cached LFR %d understates true longest free range %d", d.bits.LFR(), actual)
}
