package swarmap

import "testing"

func TestBucketInsertAndMatch(t *testing.T) {
	b := NewBucket()
	h := uint64(0x1234) << 15

	if !b.InsertFirstEmpty(hTag(h), 7) {
		t.Fatal("InsertFirstEmpty failed on empty bucket")
	}

	mask := b.Match(h)
	if mask == 0 {
		t.Fatal("Match found no candidates for a freshly inserted tag")
	}

	found := false
	for mask != 0 {
		slot := trailingZeros16(mask)
		mask &= mask - 1
		if b.IndexAt(slot) == 7 {
			found = true
		}
	}
	if !found {
		t.Fatal("Match candidates did not include the inserted index")
	}
}

func TestBucketFillsAllSlotsThenOverflows(t *testing.T) {
	b := NewBucket()
	for i := 0; i < slotsPerBucket; i++ {
		if !b.InsertFirstEmpty(byte(i+1), uint32(i)) {
			t.Fatalf("InsertFirstEmpty failed on slot %d of %d", i, slotsPerBucket)
		}
	}

	if b.InsertFirstEmpty(1, 99) {
		t.Fatal("InsertFirstEmpty succeeded on a full bucket")
	}
	if b.Overflow() == 0 {
		t.Fatal("Overflow should be nonzero after an insert into a full bucket")
	}
}

func TestBucketMatchExcludesOtherTags(t *testing.T) {
	b := NewBucket()
	b.InsertFirstEmpty(0x10, 1)
	b.InsertFirstEmpty(0x20, 2)

	mask := b.match(0x10)
	count := 0
	for m := mask; m != 0; m &= m - 1 {
		count++
	}
	if count != 1 {
		t.Fatalf("match(0x10) matched %d slots, want 1", count)
	}
}

func TestProbeVisitsEveryBucketExactlyOnce(t *testing.T) {
	const bucketCount = 16
	p := NewProbe(0xdeadbeefcafef00d, bucketCount)

	seen := make(map[uint64]bool)
	for i := 0; i < bucketCount; i++ {
		idx := p.Next()
		if idx >= bucketCount {
			t.Fatalf("probe index %d out of range [0,%d)", idx, bucketCount)
		}
		if seen[idx] {
			t.Fatalf("probe revisited bucket %d before covering all %d buckets", idx, bucketCount)
		}
		seen[idx] = true
	}
	if len(seen) != bucketCount {
		t.Fatalf("probe visited %d distinct buckets, want %d", len(seen), bucketCount)
	}
}

func TestTableInsertAndFind(t *testing.T) {
	tbl := NewTable(8)

	keys := map[uint64]uint32{
		0x1111111111111111: 1,
		0x2222222222222222: 2,
		0x3333333333333333: 3,
	}
	for h, idx := range keys {
		if !tbl.Insert(h, idx) {
			t.Fatalf("Insert(%#x, %d) failed", h, idx)
		}
	}

	for h, want := range keys {
		got, found := tbl.Find(h, func(idx uint32) bool { return idx == want })
		if !found || got != want {
			t.Fatalf("Find(%#x) = (%d, %v), want (%d, true)", h, got, found, want)
		}
	}
}

func TestTableFindMissingReturnsFalse(t *testing.T) {
	tbl := NewTable(8)
	tbl.Insert(0xaaaa, 1)

	_, found := tbl.Find(0xbbbb, func(uint32) bool { return true })
	if found {
		t.Fatal("Find reported a hit for a hash that was never inserted")
	}
}

func TestTableInsertFullReportsFailure(t *testing.T) {
	tbl := NewTable(1)
	ok := true
	for i := 0; i < slotsPerBucket && ok; i++ {
		ok = tbl.Insert(uint64(i)<<15, uint32(i))
	}
	if tbl.Insert(uint64(slotsPerBucket)<<15, 999) {
		t.Fatal("Insert succeeded past the single bucket's capacity")
	}
}

func trailingZeros16(m uint16) int {
	for i := 0; i < 16; i++ {
		if m&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 16
}
