package tcache

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/analogjupiter/d-compiler/gc/arena"
	"github.com/analogjupiter/d-compiler/gc/emap"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// testHarness is a fake Arena + Registry + ExtentMap backed by real Go
// memory, standing in for the out-of-scope arena/extent-map/OS-paging
// collaborators (spec.md §1) so ThreadCache's own logic can be exercised
// end to end. ResizeLarge always fails, matching the documented contract
// that a caller must tolerate in-place growth being unavailable (spec.md
// §9 Open Questions); real in-place OS-level remap is out of scope.
type testHarness struct {
	mu        sync.Mutex
	slabs     map[uintptr][]byte
	large     map[uintptr][]byte
	descs     map[uintptr]emap.PageDescriptor
	lastClass uint
}

func newHarness() *testHarness {
	return &testHarness{
		slabs: make(map[uintptr][]byte),
		large: make(map[uintptr][]byte),
		descs: make(map[uintptr]emap.PageDescriptor),
	}
}

func (h *testHarness) GetOrInitialize(class uint) arena.Arena {
	h.mu.Lock()
	h.lastClass = class
	h.mu.Unlock()
	return h
}

func (h *testHarness) containsPointers() bool {
	return h.lastClass&1 == 1
}

func (h *testHarness) AllocSmall(em emap.ExtentMap, size uint) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	slotSize := sizeclass.GetAllocSize(size)
	buf := make([]byte, slotSize)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	h.slabs[addr] = buf
	h.descs[addr] = emap.PageDescriptor{
		Kind:             emap.KindSlab,
		Arena:            arena.Arena(h),
		ContainsPointers: h.containsPointers(),
		Slab: &emap.SlabAllocInfo{
			Address:   addr,
			SizeClass: sizeclass.GetSizeClass(size),
		},
	}
	return addr
}

func (h *testHarness) AllocLarge(em emap.ExtentMap, size uint, zero bool) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	aligned := alignUp(size, sizeclass.PageSize)
	buf := make([]byte, aligned)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	h.large[addr] = buf
	h.descs[addr] = emap.PageDescriptor{
		Kind:             emap.KindLarge,
		Arena:            arena.Arena(h),
		ContainsPointers: h.containsPointers(),
		Large: &emap.LargeExtentInfo{
			Size: aligned,
		},
	}
	return addr
}

func (h *testHarness) Free(em emap.ExtentMap, pd emap.PageDescriptor, ptr uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.descs, ptr)
	delete(h.slabs, ptr)
	delete(h.large, ptr)
}

func (h *testHarness) ResizeLarge(em emap.ExtentMap, extent uintptr, newSize uint) bool {
	return false
}

// Lookup resolves addr to its owning extent's descriptor even when addr
// falls inside the extent rather than exactly at its base, the way a real
// page-granular extent map would (any address within the page maps to the
// same descriptor) -- this is what lets interior-pointer Destroy calls
// reach the assertion in tcache.go instead of silently no-op'ing.
func (h *testHarness) Lookup(addr uintptr) emap.PageDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pd, ok := h.descs[addr]; ok {
		return pd
	}
	for base, buf := range h.slabs {
		if addr > base && addr < base+uintptr(len(buf)) {
			return h.descs[base]
		}
	}
	for base, buf := range h.large {
		if addr > base && addr < base+uintptr(len(buf)) {
			return h.descs[base]
		}
	}
	return emap.PageDescriptor{}
}

func newTestCache(h *testHarness) *ThreadCache {
	return New(h, h, 0)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.Alloc(100, false)
	if ptr == 0 {
		t.Fatal("Alloc returned null for a satisfiable request")
	}
	if pd := h.Lookup(ptr); !pd.Mapped() {
		t.Fatal("Alloc did not register an extent-map entry")
	}

	tc.Free(ptr)
	if pd := h.Lookup(ptr); pd.Mapped() {
		t.Fatal("Free did not remove the extent-map entry")
	}
}

func TestAllocRejectsBadSizes(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	if ptr := tc.Alloc(0, false); ptr != 0 {
		t.Fatal("Alloc(0, ...) should return null")
	}
	if ptr := tc.Alloc(sizeclass.MaxAllocationSize+1, false); ptr != 0 {
		t.Fatal("Alloc(> MaxAllocationSize, ...) should return null")
	}
}

func TestFreeNullIsNoOp(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)
	tc.Free(0) // must not panic
}

// Scenario 4 (spec.md §8): a large appendable allocation's capacity
// tracks exactly the slice whose end coincides with usedCapacity.
func TestAppendableCapacityLargeExtent(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.AllocAppendable(16384, false, nil)
	if ptr == 0 {
		t.Fatal("AllocAppendable returned null")
	}

	pd := h.Lookup(ptr)
	pd.Large.UsedCapacity = 100

	if got := tc.GetCapacity(Slice{Address: ptr, Start: 0, Stop: 100}); got != 16384 {
		t.Fatalf("GetCapacity([0,100)) = %d, want 16384", got)
	}
	if got := tc.GetCapacity(Slice{Address: ptr, Start: 50, Stop: 100}); got != 16334 {
		t.Fatalf("GetCapacity([50,100)) = %d, want 16334", got)
	}
	if got := tc.GetCapacity(Slice{Address: ptr, Start: 0, Stop: 99}); got != 0 {
		t.Fatalf("GetCapacity([0,99)) = %d, want 0 (stop != usedCapacity)", got)
	}
}

func TestExtendZeroDeltaAlwaysSucceeds(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	if !tc.Extend(Slice{Address: 0, Start: 0, Stop: 0}, 0) {
		t.Fatal("Extend with delta 0 must succeed even on a null/unmapped address")
	}
}

func TestExtendGrowsLargeExtentWithinCurrentSize(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	// 20000 bytes rounds up to a 20480-byte (5-page) extent, leaving 480
	// bytes of in-extent headroom to extend into without touching
	// ResizeLarge.
	const requested = 20000
	ptr := tc.AllocAppendable(requested, false, nil)
	pd := h.Lookup(ptr)

	if !tc.Extend(Slice{Address: ptr, Start: 0, Stop: requested}, 50) {
		t.Fatal("Extend within the current extent size should succeed")
	}
	if pd.Large.UsedCapacity != requested+50 {
		t.Fatalf("UsedCapacity = %d, want %d", pd.Large.UsedCapacity, requested+50)
	}
}

func TestExtendFailsWhenCapacityIsZero(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.AllocAppendable(100, false, nil)
	// Stop deliberately does not match usedCapacity (set by
	// AllocAppendable to the requested size, 100).
	if tc.Extend(Slice{Address: ptr, Start: 0, Stop: 1}, 10) {
		t.Fatal("Extend should fail when GetCapacity is 0")
	}
}

// Scenario 5 (spec.md §8): realloc into a different size class drops the
// reserved finalizer slot; the new pointer differs and destroy on it never
// invokes the old finalizer.
func TestReallocAcrossClassesDropsFinalizerAndMoves(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	called := false
	fin := func(ptr uintptr, usedCapacity uint) { called = true }

	ptr := tc.AllocAppendable(45, false, fin)
	if ptr == 0 {
		t.Fatal("AllocAppendable returned null")
	}
	origClass := h.Lookup(ptr).Slab.SizeClass
	origSlotSize := sizeclass.GetSizeFromClass(origClass)
	if got := tc.GetCapacity(Slice{Address: ptr, Start: 0, Stop: 45}); got != origSlotSize-sizeclass.PointerSize {
		t.Fatalf("initial capacity = %d, want %d", got, origSlotSize-sizeclass.PointerSize)
	}

	newPtr := tc.Realloc(ptr, 75, false)
	if newPtr == 0 {
		t.Fatal("Realloc returned null")
	}
	if newPtr == ptr {
		t.Fatal("Realloc into a different size class should return a new pointer")
	}

	newPD := h.Lookup(newPtr)
	if newPD.Slab.Finalizer != nil {
		t.Fatal("realloc across classes should not carry the old finalizer forward")
	}

	tc.Destroy(newPtr)
	if called {
		t.Fatal("destroy invoked the original finalizer after a cross-class realloc dropped it")
	}
}

func TestReallocSizeZeroFrees(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.Alloc(64, false)
	if got := tc.Realloc(ptr, 0, false); got != 0 {
		t.Fatalf("Realloc(ptr, 0, ...) = %#x, want 0", got)
	}
	if pd := h.Lookup(ptr); pd.Mapped() {
		t.Fatal("Realloc(ptr, 0, ...) should have freed ptr")
	}
}

func TestReallocNullDelegatesToAlloc(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.Realloc(0, 64, false)
	if ptr == 0 {
		t.Fatal("Realloc(0, size, ...) should behave like Alloc")
	}
}

func TestReallocSameClassUpdatesInPlace(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.AllocAppendable(20, false, nil)
	cls := h.Lookup(ptr).Slab.SizeClass

	newPtr := tc.Realloc(ptr, 20, false)
	if newPtr != ptr {
		t.Fatalf("same-size-class realloc moved %#x -> %#x, want in-place", ptr, newPtr)
	}
	if h.Lookup(ptr).Slab.SizeClass != cls {
		t.Fatal("in-place realloc should not change size class")
	}
}

func TestDestroyRejectsInteriorPointer(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	ptr := tc.Alloc(64, false)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("Destroy on an interior pointer should panic via gcassert")
		}
	}()
	tc.Destroy(ptr + 1)
}

func TestCollectScansRegisteredRoots(t *testing.T) {
	h := newHarness()
	tc := newTestCache(h)

	target := tc.Alloc(64, false)

	var root uintptr
	buf := make([]uintptr, 1)
	buf[0] = target
	root = uintptr(unsafe.Pointer(&buf[0]))

	tc.AddRoots(RootRange{Start: root, Stop: root + unsafe.Sizeof(buf[0])})

	result := tc.Collect()
	if result.RangesScanned == 0 {
		t.Fatal("Collect should have scanned at least the registered root range")
	}
	if result.CandidatesFound == 0 {
		t.Fatal("Collect should have found the pointer to target in the root range")
	}
}
