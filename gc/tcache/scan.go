package tcache

import (
	"log/slog"
	"unsafe"

	"github.com/analogjupiter/d-compiler/gc/gcassert"
	"github.com/analogjupiter/d-compiler/gc/platform"
	"github.com/analogjupiter/d-compiler/gc/sizeclass"
)

// rootRangeSize is the in-memory footprint of one RootRange, used to size
// the allocator-backed roots buffer.
const rootRangeSize = uint(unsafe.Sizeof(RootRange{}))

// rootsSlice views the current roots buffer as a Go slice, for iteration
// by Collect. It returns nil when no roots have been registered yet.
func (tc *ThreadCache) rootsSlice() []RootRange {
	if tc.rootsLen == 0 {
		return nil
	}
	return unsafe.Slice((*RootRange)(unsafe.Pointer(tc.rootsPtr)), tc.rootsLen)
}

// AddRoots registers r for conservative scanning by Collect, per spec.md
// §4.C.6. The backing array is grown through this same cache, with
// containsPointers = true: the roots slice itself holds pointer-shaped
// words (addresses), so it must live in a pointer-bearing arena rather
// than a plain host-GC-managed Go slice.
func (tc *ThreadCache) AddRoots(r RootRange) {
	if tc.rootsLen == tc.rootsCap {
		tc.growRoots()
	}
	slot := (*RootRange)(unsafe.Pointer(tc.rootsPtr + uintptr(tc.rootsLen)*uintptr(rootRangeSize)))
	*slot = r
	tc.rootsLen++
}

// growRoots doubles the roots buffer's capacity (starting from 4),
// allocating the replacement through tc.Alloc and copying the live
// entries across before freeing the old buffer.
func (tc *ThreadCache) growRoots() {
	newCap := tc.rootsCap * 2
	if newCap == 0 {
		newCap = 4
	}

	newPtr := tc.Alloc(uint(newCap)*rootRangeSize, true)
	gcassert.Check(newPtr != 0, "addRoots: failed to grow the root set (out of memory)")

	if tc.rootsLen > 0 {
		memcpy(newPtr, tc.rootsPtr, tc.rootsLen*rootRangeSize)
	}
	if tc.rootsPtr != 0 {
		tc.Free(tc.rootsPtr)
	}

	tc.rootsPtr = newPtr
	tc.rootsCap = newCap
}

// CollectResult summarizes one Collect pass; Collect returns it and also
// logs it via slog.
type CollectResult struct {
	RangesScanned int
	// CandidatesFound counts the scanned ranges in which at least one
	// candidate was found, not the individual candidates.
	CandidatesFound int
}

// Collect runs one conservative scan pass: the stack range
// [framePointer, stackBottom), then every registered root range. Marking
// and sweeping beyond "was this address found to be live" are explicitly
// unimplemented — spec.md §9 notes the reference collect() is itself
// partial and a conforming implementation need only expose the entry
// point and these hooks.
func (tc *ThreadCache) Collect() CollectResult {
	var result CollectResult

	platform.PushRegisters(func() bool {
		fp := platform.FramePointer()
		if fp != 0 && fp < tc.stackBottom {
			found := tc.scan(fp, tc.stackBottom)
			result.RangesScanned++
			if found {
				result.CandidatesFound++
			}
		}
		return true
	})

	for _, r := range tc.rootsSlice() {
		if r.Start >= r.Stop {
			continue
		}
		found := tc.scan(r.Start, r.Stop)
		result.RangesScanned++
		if found {
			result.CandidatesFound++
		}
	}

	tc.logger.Info("gc: collect pass complete",
		slog.Int("ranges_scanned", result.RangesScanned),
		slog.Int("candidates_found", result.CandidatesFound))

	return result
}

// scan conservatively scans [start, stop) word by word, per spec.md
// §4.C.6: any word with a bit set at or above AddressSpace cannot be a
// valid heap pointer on the reference platform and is rejected outright.
// Surviving candidates are looked up in the extent map; a mapped address
// is considered found. It returns true iff any candidate was found. Found
// candidates are not marked, so one found by an earlier pass counts again.
func (tc *ThreadCache) scan(start, stop uintptr) bool {
	found := false
	for addr := start; addr+sizeclass.PointerSize <= stop; addr += sizeclass.PointerSize {
		word := *(*uint64)(unsafe.Pointer(addr))
		if word&^(sizeclass.AddressSpace-1) != 0 {
			continue
		}
		pd := tc.emap.Lookup(uintptr(word))
		if pd.Mapped() {
			found = true
		}
	}
	return found
}
