package swarmap

import "math/bits"

// Table is an open-addressed table of Buckets, probed by Probe. It stores
// opaque 32-bit "external index" values keyed by hash; callers own actual
// key/value storage (out of scope here, per spec.md §1) and supply an
// Equal callback to disambiguate tag collisions during Find.
type Table struct {
	buckets []Bucket
}

// NewTable allocates a table with bucketCount buckets, which must be a
// power of two and at least 1.
func NewTable(bucketCount int) *Table {
	buckets := make([]Bucket, bucketCount)
	for i := range buckets {
		buckets[i] = NewBucket()
	}
	return &Table{buckets: buckets}
}

// Len reports the number of buckets backing the table.
func (t *Table) Len() int {
	return len(t.buckets)
}

// Equal reports whether the entry referenced by externalIndex is the one
// the caller is searching for. Find calls it only on tag matches, never on
// every slot, since the 7-bit tag already filters almost all candidates.
type Equal func(externalIndex uint32) bool

// Insert stores externalIndex under hash h, probing forward through
// buckets until one has a free slot. It returns false if every bucket was
// probed without finding room (the table is full and must be grown by the
// caller).
func (t *Table) Insert(h uint64, externalIndex uint32) bool {
	p := NewProbe(h, uint64(len(t.buckets)))
	tag := hTag(h)
	for i := 0; i < len(t.buckets); i++ {
		b := &t.buckets[p.Next()]
		if b.InsertFirstEmpty(tag, externalIndex) {
			return true
		}
	}
	return false
}

// Find looks up hash h, calling equal on every tag-matching candidate
// until one reports true. It stops probing at the first bucket whose
// Overflow counter is zero, since that means no insert ever collided out
// of this bucket along the probe sequence for any hash that would route
// through it.
func (t *Table) Find(h uint64, equal Equal) (externalIndex uint32, found bool) {
	p := NewProbe(h, uint64(len(t.buckets)))
	for i := 0; i < len(t.buckets); i++ {
		b := &t.buckets[p.Next()]
		mask := b.Match(h)
		for mask != 0 {
			slot := bits.TrailingZeros16(mask)
			mask &= mask - 1
			idx := b.IndexAt(slot)
			if equal(idx) {
				return idx, true
			}
		}
		if b.Overflow() == 0 {
			return 0, false
		}
	}
	return 0, false
}
