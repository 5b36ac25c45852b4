package bitmap_test

import (
	"testing"

	"github.com/analogjupiter/d-compiler/gc/bitmap"
)

// bitRange describes a [i, i+n) run, mirroring the teacher's BitRange used
// to build up expected bitmaps in mallocbits_test.go.
type bitRange struct {
	i, n uint
}

func makeBitmap(t *testing.T, cap_ uint, ranges []bitRange) *bitmap.Bitmap {
	t.Helper()
	b := bitmap.New(cap_)
	for _, r := range ranges {
		b.SetRange(r.i, r.n)
	}
	return b
}

func TestSetRangeCountBits(t *testing.T) {
	const n = 256
	tests := []struct {
		name string
		i, l uint
	}{
		{"OneLow", 0, 1},
		{"OneHigh", n - 1, 1},
		{"Inner", 129, 5},
		{"Aligned", 128, 128},
		{"Begin", 0, 200},
		{"End", n - 130, 130},
		{"All", 0, n},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bitmap.New(n)
			b.SetRange(tt.i, tt.l)
			if got := b.CountBits(tt.i, tt.l); got != tt.l {
				t.Fatalf("CountBits(%d,%d) = %d, want %d", tt.i, tt.l, got, tt.l)
			}
			var outside uint
			if tt.i > 0 {
				outside += b.CountBits(0, tt.i)
			}
			if tt.i+tt.l < n {
				outside += b.CountBits(tt.i+tt.l, n-tt.i-tt.l)
			}
			if outside != 0 {
				t.Fatalf("bits leaked outside range: %d set", outside)
			}
		})
	}
}

func TestClearRangeUndoesSetRange(t *testing.T) {
	b := bitmap.New(200)
	b.SetRange(10, 50)
	b.ClearRange(10, 50)
	if got := b.CountBits(0, 200); got != 0 {
		t.Fatalf("expected empty bitmap, got %d bits set", got)
	}
}

func TestFindSetClear(t *testing.T) {
	b := makeBitmap(t, 128, []bitRange{{10, 1}, {40, 3}})

	if k := b.FindSet(0); k != 10 {
		t.Fatalf("FindSet(0) = %d, want 10", k)
	}
	for j := uint(0); j < 10; j++ {
		if b.ValueAt(j) {
			t.Fatalf("bit %d unexpectedly set", j)
		}
	}
	if k := b.FindSet(11); k != 40 {
		t.Fatalf("FindSet(11) = %d, want 40", k)
	}
	if k := b.FindSet(43); k != 128 {
		t.Fatalf("FindSet(43) = %d, want sentinel 128", k)
	}

	if k := b.FindClear(10); k != 11 {
		t.Fatalf("FindClear(10) = %d, want 11", k)
	}
}

func TestFindSetClearBackward(t *testing.T) {
	b := makeBitmap(t, 128, []bitRange{{10, 1}, {40, 3}})

	if k := b.FindSetBackward(128); k != 42 {
		t.Fatalf("FindSetBackward(128) = %d, want 42", k)
	}
	if k := b.FindSetBackward(40); k != 10 {
		t.Fatalf("FindSetBackward(40) = %d, want 10", k)
	}
	if k := b.FindSetBackward(10); k != -1 {
		t.Fatalf("FindSetBackward(10) = %d, want -1", k)
	}
	if k := b.FindClearBackward(10); k != 9 {
		t.Fatalf("FindClearBackward(10) = %d, want 9", k)
	}
}

func TestNextFreeRange(t *testing.T) {
	b := makeBitmap(t, 64, []bitRange{{0, 4}, {10, 2}})

	idx, length, ok := b.NextFreeRange(0)
	if !ok || idx != 4 || length != 6 {
		t.Fatalf("NextFreeRange(0) = (%d,%d,%v), want (4,6,true)", idx, length, ok)
	}
	idx, length, ok = b.NextFreeRange(12)
	if !ok || idx != 12 || length != 52 {
		t.Fatalf("NextFreeRange(12) = (%d,%d,%v), want (12,52,true)", idx, length, ok)
	}

	full := bitmap.New(8)
	full.SetRange(0, 8)
	if _, _, ok := full.NextFreeRange(0); ok {
		t.Fatalf("NextFreeRange on a full bitmap should return false")
	}
}

func TestRollingRangeMatchesWholeArray(t *testing.T) {
	const n = 192
	whole := bitmap.New(n)
	whole.SetRange(0, n)

	rolling := bitmap.New(n)
	rolling.SetRollingRange(50, n)

	for i := uint(0); i < n; i++ {
		if whole.ValueAt(i) != rolling.ValueAt(i) {
			t.Fatalf("bit %d differs between whole-array and rolling set of length N", i)
		}
	}
}

func TestRollingRangeWraps(t *testing.T) {
	b := bitmap.New(64)
	b.SetRollingRange(60, 8)
	for _, i := range []uint{60, 61, 62, 63, 0, 1, 2, 3} {
		if !b.ValueAt(i) {
			t.Fatalf("expected bit %d set after wrap", i)
		}
	}
	if b.CountBits(0, 64) != 8 {
		t.Fatalf("expected exactly 8 bits set, got %d", b.CountBits(0, 64))
	}
}

func TestSetRangeFromMask(t *testing.T) {
	src := bitmap.New(64)
	src.SetRange(0, 64)

	dst := bitmap.New(64)
	dst.SetRangeFrom(src, 10, 20)

	if dst.CountBits(0, 64) != 20 {
		t.Fatalf("expected 20 bits copied, got %d", dst.CountBits(0, 64))
	}
	if dst.FindSet(0) != 10 {
		t.Fatalf("copied range should start at 10")
	}
}

func TestAtomicSetClear(t *testing.T) {
	b := bitmap.New(128)
	b.SetBitAtomic(77)
	if !b.ValueAtAtomic(77) {
		t.Fatalf("expected bit 77 set after SetBitAtomic")
	}
	b.ClearBitAtomic(77)
	if b.ValueAtAtomic(77) {
		t.Fatalf("expected bit 77 clear after ClearBitAtomic")
	}
}

func TestSetFirst(t *testing.T) {
	b := bitmap.New(8)
	b.SetRange(0, 3)
	idx := b.SetFirst()
	if idx != 3 {
		t.Fatalf("SetFirst() = %d, want 3", idx)
	}
	if !b.ValueAt(3) {
		t.Fatalf("SetFirst should have set bit 3")
	}
}
