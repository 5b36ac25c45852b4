// Package bitmap implements the fixed-capacity bit array primitive shared by
// the block descriptor (sdlib/d/gc/block) and the compact hash-map substrate
// (config/map.d): range set/clear/count, forward/backward scans, and a
// rolling (wrap-around) variant.
//
// A Bitmap's capacity N is fixed at construction (Go has no way to carry an
// array length as a generic type parameter), so this plays the role of the
// spec's Bitmap<N>: the words backing it are sized once, in New, and never
// grow.
package bitmap

import (
	"math/bits"
	"sync/atomic"
)

const wordBits = 64

// Bitmap is a fixed-capacity ordered sequence of bits, packed 64 to a word.
// Bit i lives at word i/64, bit (i%64) of that word. The zero value is not
// usable; construct with New.
type Bitmap struct {
	n     uint
	words []uint64
}

// New returns a Bitmap with capacity for n bits, all initially clear.
func New(n uint) *Bitmap {
	return &Bitmap{
		n:     n,
		words: make([]uint64, numWords(n)),
	}
}

func numWords(n uint) uint {
	return (n + wordBits - 1) / wordBits
}

// Len reports the bitmap's capacity in bits.
func (b *Bitmap) Len() uint {
	return b.n
}

// lastWordMask masks off the dead bits above N in the final word, so
// find/findBackward never report a dead bit above the bitmap's nominal
// capacity as a match.
func (b *Bitmap) lastWordMask() uint64 {
	rem := b.n % wordBits
	if rem == 0 {
		return ^uint64(0)
	}
	return (uint64(1) << rem) - 1
}

// ValueAt reports whether bit i is set. i must be < N.
func (b *Bitmap) ValueAt(i uint) bool {
	return b.words[i/wordBits]&(uint64(1)<<(i%wordBits)) != 0
}

// ValueAtAtomic is ValueAt with an acquire-ordered load on the containing
// word, for cross-thread marking (dirty/allocated bits written by another
// thread via SetBitAtomic).
func (b *Bitmap) ValueAtAtomic(i uint) bool {
	w := atomic.LoadUint64(&b.words[i/wordBits])
	return w&(uint64(1)<<(i%wordBits)) != 0
}

// SetBit sets bit i. Idempotent.
func (b *Bitmap) SetBit(i uint) {
	b.words[i/wordBits] |= uint64(1) << (i % wordBits)
}

// ClearBit clears bit i. Idempotent.
func (b *Bitmap) ClearBit(i uint) {
	b.words[i/wordBits] &^= uint64(1) << (i % wordBits)
}

// SetBitAtomic sets bit i with a sequentially consistent fetch-or,
// sufficient for cross-thread marking.
func (b *Bitmap) SetBitAtomic(i uint) {
	mask := uint64(1) << (i % wordBits)
	w := &b.words[i/wordBits]
	for {
		old := atomic.LoadUint64(w)
		if old&mask != 0 {
			return
		}
		if atomic.CompareAndSwapUint64(w, old, old|mask) {
			return
		}
	}
}

// ClearBitAtomic clears bit i with a sequentially consistent fetch-and.
func (b *Bitmap) ClearBitAtomic(i uint) {
	mask := uint64(1) << (i % wordBits)
	w := &b.words[i/wordBits]
	for {
		old := atomic.LoadUint64(w)
		if old&mask == 0 {
			return
		}
		if atomic.CompareAndSwapUint64(w, old, old&^mask) {
			return
		}
	}
}

// SetFirst sets and returns the index of the lowest clear bit. The caller
// must have verified the bitmap is not full; behavior is undefined
// otherwise.
func (b *Bitmap) SetFirst() uint {
	i := b.FindClear(0)
	b.SetBit(i)
	return i
}

// FindSet returns the index of the lowest set bit at or after i, or N if
// none exists.
func (b *Bitmap) FindSet(i uint) uint {
	return b.find(i, 0)
}

// FindClear returns the index of the lowest clear bit at or after i, or N
// if none exists.
func (b *Bitmap) FindClear(i uint) uint {
	return b.find(i, ^uint64(0))
}

// find implements FindSet/FindClear by XORing each word against xorMask (0
// to look for a set bit, all-ones to look for a clear bit), which reduces
// both queries to "find first set", then masking off bits below i and
// counting trailing zeros.
func (b *Bitmap) find(i uint, xorMask uint64) uint {
	if i >= b.n {
		return b.n
	}
	lastWi := uint(len(b.words)) - 1
	wordAt := func(wi uint) uint64 {
		w := b.words[wi] ^ xorMask
		if wi == lastWi {
			// Clamp dead bits above N so they never look like a match,
			// whichever polarity (set or clear) we're searching for.
			w &= b.lastWordMask()
		}
		return w
	}

	wi := i / wordBits
	bit := i % wordBits
	w := wordAt(wi) &^ ((uint64(1) << bit) - 1)
	for {
		if w != 0 {
			idx := wi*wordBits + uint(bits.TrailingZeros64(w))
			return idx
		}
		wi++
		if wi >= uint(len(b.words)) {
			return b.n
		}
		w = wordAt(wi)
	}
}

// FindSetBackward returns the index of the highest set bit strictly before
// i, or -1 if none exists.
func (b *Bitmap) FindSetBackward(i int) int {
	return b.findBackward(i, 0)
}

// FindClearBackward returns the index of the highest clear bit strictly
// before i, or -1 if none exists.
func (b *Bitmap) FindClearBackward(i int) int {
	return b.findBackward(i, ^uint64(0))
}

func (b *Bitmap) findBackward(i int, xorMask uint64) int {
	if i <= 0 {
		return -1
	}
	if uint(i) > b.n {
		i = int(b.n)
	}
	lastWi := len(b.words) - 1
	wordAt := func(wi int) uint64 {
		w := b.words[wi] ^ xorMask
		if wi == lastWi {
			w &= b.lastWordMask()
		}
		return w
	}

	pos := i - 1
	wi := pos / wordBits
	bit := uint(pos % wordBits)
	w := wordAt(wi)
	if bit < wordBits-1 {
		w &= (uint64(1) << (bit + 1)) - 1
	}
	for {
		if w != 0 {
			hi := wordBits - 1 - bits.LeadingZeros64(w)
			return wi*wordBits + hi
		}
		wi--
		if wi < 0 {
			return -1
		}
		w = wordAt(wi)
	}
}

// NextFreeRange yields the next [index, index+length) run of zeros with
// start <= index. It returns false once no such range remains; length is
// always at least 1 when ok is true.
func (b *Bitmap) NextFreeRange(start uint) (index, length uint, ok bool) {
	index = b.FindClear(start)
	if index >= b.n {
		return 0, 0, false
	}
	end := b.FindSet(index)
	return index, end - index, true
}

// SetRange sets L consecutive bits starting at i. Requires i+L <= N.
func (b *Bitmap) SetRange(i, length uint) {
	b.rangeOp(i, length, true, false)
}

// ClearRange clears L consecutive bits starting at i. Requires i+L <= N.
func (b *Bitmap) ClearRange(i, length uint) {
	b.rangeOp(i, length, false, false)
}

// SetRollingRange is SetRange, but the range wraps modulo N. The caller
// guarantees length <= N.
func (b *Bitmap) SetRollingRange(i, length uint) {
	b.rangeOp(i, length, true, true)
}

// ClearRollingRange is ClearRange, but the range wraps modulo N. The caller
// guarantees length <= N.
func (b *Bitmap) ClearRollingRange(i, length uint) {
	b.rangeOp(i, length, false, true)
}

// rangeOp implements all four range set/clear variants. Non-rolling ranges
// take the fast single-word path when they fit within one word; rolling
// ranges split at the wrap point and recurse at most once per side.
func (b *Bitmap) rangeOp(i, length uint, set, rolling bool) {
	if length == 0 {
		return
	}
	if rolling {
		i %= b.n
		if i+length > b.n {
			first := b.n - i
			b.rangeOp(i, first, set, false)
			b.rangeOp(0, length-first, set, false)
			return
		}
	}
	if length <= wordBits-(i%wordBits) {
		// Fast path: the whole range fits in one word.
		mask := rangeMask(i%wordBits, length)
		wi := i / wordBits
		if set {
			b.words[wi] |= mask
		} else {
			b.words[wi] &^= mask
		}
		return
	}

	wi := i / wordBits
	bit := i % wordBits
	remaining := length

	// Leading partial word.
	if bit != 0 {
		n := wordBits - bit
		mask := rangeMask(bit, n)
		if set {
			b.words[wi] |= mask
		} else {
			b.words[wi] &^= mask
		}
		wi++
		remaining -= n
	}

	// Full words.
	for remaining >= wordBits {
		if set {
			b.words[wi] = ^uint64(0)
		} else {
			b.words[wi] = 0
		}
		wi++
		remaining -= wordBits
	}

	// Trailing partial word.
	if remaining > 0 {
		mask := rangeMask(0, remaining)
		if set {
			b.words[wi] |= mask
		} else {
			b.words[wi] &^= mask
		}
	}
}

func rangeMask(bit, length uint) uint64 {
	if length >= wordBits {
		return ^uint64(0)
	}
	return ((uint64(1) << length) - 1) << bit
}

// SetRangeFrom copies L bits from src starting at i into the receiver,
// starting at the same index: dst &= ~mask; dst |= src & mask.
func (b *Bitmap) SetRangeFrom(src *Bitmap, i, length uint) {
	b.setRangeFrom(src, i, length, false)
}

// SetRollingRangeFrom is SetRangeFrom with the range wrapping modulo N.
func (b *Bitmap) SetRollingRangeFrom(src *Bitmap, i, length uint) {
	b.setRangeFrom(src, i, length, true)
}

func (b *Bitmap) setRangeFrom(src *Bitmap, i, length uint, rolling bool) {
	if length == 0 {
		return
	}
	if rolling {
		i %= b.n
		if i+length > b.n {
			first := b.n - i
			b.setRangeFrom(src, i, first, false)
			b.setRangeFrom(src, 0, length-first, false)
			return
		}
	}
	// Bit-by-bit is the simplest correct implementation of a masked copy
	// across arbitrary word boundaries; callers use this for metadata
	// propagation (e.g. seeding dirtyPages from a prior generation), never
	// on a hot path.
	for k := uint(0); k < length; k++ {
		if src.ValueAt(i + k) {
			b.SetBit(i + k)
		} else {
			b.ClearBit(i + k)
		}
	}
}

// CountBits returns the population count over [i, i+L). Requires i+L <= N.
func (b *Bitmap) CountBits(i, length uint) uint {
	return b.countBits(i, length, false)
}

// CountBitsRolling is CountBits with the range wrapping modulo N.
func (b *Bitmap) CountBitsRolling(i, length uint) uint {
	return b.countBits(i, length, true)
}

func (b *Bitmap) countBits(i, length uint, rolling bool) uint {
	if length == 0 {
		return 0
	}
	if rolling {
		i %= b.n
		if i+length > b.n {
			first := b.n - i
			return b.countBits(i, first, false) + b.countBits(0, length-first, false)
		}
	}

	var total uint
	wi := i / wordBits
	bit := i % wordBits
	remaining := length

	if bit != 0 {
		n := remaining
		if n > wordBits-bit {
			n = wordBits - bit
		}
		total += uint(bits.OnesCount64(b.words[wi] & rangeMask(bit, n)))
		wi++
		remaining -= n
	}
	for remaining >= wordBits {
		total += uint(bits.OnesCount64(b.words[wi]))
		wi++
		remaining -= wordBits
	}
	if remaining > 0 {
		total += uint(bits.OnesCount64(b.words[wi] & rangeMask(0, remaining)))
	}
	return total
}
