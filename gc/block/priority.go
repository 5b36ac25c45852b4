package block

import "math/bits"

// PriorityKey is the 64-bit packed sort key embedded in every
// BlockDescriptor. It doubles as both state and comparator: lower values
// win. The layout (MSB first) is load-bearing — any reimplementation must
// preserve the ordering semantics below, not just the raw stored values:
//
//	bits 53..62 (10 bits): longest free range (LFR) length, in pages.
//	bits 48..52 ( 5 bits): coarse size class of that LFR.
//	bits 32..41 (10 bits): allocation score = PagesInBlock - allocCount.
//	bits  0..31 (32 bits): block address >> LgBlockSize.
//
// Comparing two keys as plain unsigned integers implements
// priorityBlockCmp exactly: shorter LFR wins; ties broken by more live
// allocations (smaller score); remaining ties broken by lower address.
type PriorityKey uint64

const (
	pkLFRShift      = 53
	pkLFRBits       = 10
	pkLFRMax        = (1 << pkLFRBits) - 1
	pkLFRClassShift = 48
	pkLFRClassBits  = 5
	pkLFRClassMax   = (1 << pkLFRClassBits) - 1
	pkScoreShift    = 32
	pkScoreBits     = 10
	pkScoreMax      = (1 << pkScoreBits) - 1
	pkAddrShift     = 0
	pkAddrBits      = 32
	pkAddrMax       = (1 << pkAddrBits) - 1
)

func field(v PriorityKey, shift, bitsWidth uint) uint64 {
	return (uint64(v) >> shift) & ((1 << bitsWidth) - 1)
}

func withField(v PriorityKey, shift, bitsWidth uint, value uint64) PriorityKey {
	mask := uint64((1<<bitsWidth)-1) << shift
	return PriorityKey((uint64(v) &^ mask) | ((value << shift) & mask))
}

// newPriorityKey builds the initial key for a freshly carved block: empty
// (LFR == PagesInBlock), allocCount == 0 (so score == PagesInBlock), at
// the given packed block address.
func newPriorityKey(packedAddr uint64, pagesInBlock uint) PriorityKey {
	var k PriorityKey
	k = withField(k, pkAddrShift, pkAddrBits, packedAddr&pkAddrMax)
	k = withField(k, pkScoreShift, pkScoreBits, uint64(pagesInBlock)&pkScoreMax)
	k = k.withLFR(pagesInBlock)
	return k
}

// LFR returns the longest-free-range field, in pages.
func (k PriorityKey) LFR() uint {
	return uint(field(k, pkLFRShift, pkLFRBits))
}

// LFRClass returns the coarse size-class field derived from LFR, used for
// cheap approximate comparisons upstream of the exact LFR field.
func (k PriorityKey) LFRClass() uint {
	return uint(field(k, pkLFRClassShift, pkLFRClassBits))
}

// Score returns the allocation-score field: PagesInBlock - allocCount.
func (k PriorityKey) Score() uint {
	return uint(field(k, pkScoreShift, pkScoreBits))
}

// PackedAddress returns the block address right-shifted by LgBlockSize.
func (k PriorityKey) PackedAddress() uint64 {
	return field(k, pkAddrShift, pkAddrBits)
}

// withLFR is the single writer of the LFR+class subfield. Every allocation
// path that changes the longest run must go through this (or
// updateLongestFreeRange, its BlockDescriptor-level wrapper) to keep the
// packed key monotone everywhere else.
func (k PriorityKey) withLFR(lfr uint) PriorityKey {
	if lfr > pkLFRMax {
		lfr = pkLFRMax
	}
	k = withField(k, pkLFRShift, pkLFRBits, uint64(lfr))
	return withField(k, pkLFRClassShift, pkLFRClassBits, uint64(lfrSizeClass(lfr)))
}

// lfrSizeClass buckets an LFR length into a coarse log2 class, clamped to
// the field's width.
func lfrSizeClass(lfr uint) uint {
	if lfr == 0 {
		return 0
	}
	c := bits.Len(lfr)
	if c > pkLFRClassMax {
		c = pkLFRClassMax
	}
	return uint(c)
}

// decrementScore implements reserve()'s "decrement packed allocation score
// by one unit" — one more live allocation in this block.
func (k PriorityKey) decrementScore() PriorityKey {
	s := k.Score()
	if s > 0 {
		s--
	}
	return withField(k, pkScoreShift, pkScoreBits, uint64(s))
}

// incrementScore implements release()'s "increment packed allocation score
// by one unit" — one fewer live allocation in this block.
func (k PriorityKey) incrementScore() PriorityKey {
	s := k.Score()
	if s < pkScoreMax {
		s++
	}
	return withField(k, pkScoreShift, pkScoreBits, uint64(s))
}

// priorityBlockCmp is the only comparator for the PriorityBlockHeap; all
// policy is encoded in the bit layout. It returns <0, 0, >0 as l's packed
// value is less than, equal to, or greater than r's.
func priorityBlockCmp(l, r PriorityKey) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

// unusedKey is the comparator key for the UnusedBlockHeap:
// (generation << 32) | address. Younger generations sort later, so a
// min-heap ordered by this key recycles blocks FIFO (oldest generation
// first). The reference lays this out as (generation << 56) | address
// with an 8-bit generation field; here generation is widened to the full
// 32 bits (matching PriorityKey's own 32-bit address field) so it never
// silently truncates older generations' high bits into the address field.
type unusedKey uint64

func newUnusedKey(generation uint32, packedAddr uint64) unusedKey {
	return unusedKey(uint64(generation)<<32 | (packedAddr & pkAddrMax))
}

func unusedBlockDescriptorCmp(l, r unusedKey) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}
