// Package platform gathers the platform hooks spec.md §6 names as
// required collaborators: a cheap per-CPU id, a frame-pointer read, the
// callee-saved-register spill used by conservative stack scanning, and
// the cache-line padding the teacher applies informally ("grouped here
// for better caching" in mcache's doc comment) to keep hot per-CPU state
// from false-sharing a cache line.
package platform

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// CacheLinePad is a zero-sized-on-most-platforms field that forces
// whatever follows it onto its own cache line. Embed it between hot,
// independently-written fields (e.g. successive per-CPU ThreadCache
// slots) to avoid false sharing, the same concern the teacher addresses
// by hand-grouping fields at the top of mcache.
type CacheLinePad = cpu.CacheLinePad

// cpuIDFallback is incremented when the getcpu(2) syscall is unavailable
// (e.g. non-Linux), so every caller still gets a valid, if not accurate,
// partition key; successive calls get successive values (mod 4096), so the
// key is not stable across calls. Per-CPU arena selection is purely
// an optimization (spec.md §9): correctness never depends on it matching
// the true running CPU.
var cpuIDFallback uint64

// cpuIDFunc is registered by a per-OS init (see platform_linux.go) to back
// CPUID with the real getcpu(2) syscall. Left nil on platforms with no
// such registration, in which case CPUID always falls back to the
// round-robin counter.
var cpuIDFunc func() (int, bool)

// SetCPUIDFunc registers a platform-specific CPU-id reader. Exposed for
// the same reason as SetFramePointerFunc: a host targeting a platform this
// module doesn't special-case can still supply one.
func SetCPUIDFunc(f func() (int, bool)) {
	cpuIDFunc = f
}

// CPUID returns a small non-negative integer identifying (approximately)
// which CPU the calling thread is running on, for (cpu, pointerness)
// arena partitioning. It is backed by the getcpu(2) syscall on platforms
// that register one (see platform_linux.go), and falls back to a
// round-robin counter elsewhere.
func CPUID() uint {
	if cpuIDFunc != nil {
		if id, ok := cpuIDFunc(); ok && id >= 0 {
			return uint(id)
		}
	}
	return uint(atomic.AddUint64(&cpuIDFallback, 1) % 4096)
}

// FramePointer returns the current frame pointer, for conservative
// stack-range scanning ([framePointer, stackBottom)). There is no portable
// Go mechanism to read a frame-pointer register without cgo or per-arch
// assembly (neither of which this module links in); this is a documented
// extension point. It returns 0 until a per-arch implementation is
// registered with SetFramePointerFunc.
func FramePointer() uintptr {
	if framePointerFunc != nil {
		return framePointerFunc()
	}
	return 0
}

var framePointerFunc func() uintptr

// SetFramePointerFunc registers a per-arch frame-pointer reader. Intended
// to be called from an arch-specific init function linked in by a host
// that needs real conservative scanning; left unset, FramePointer reads
// as 0 and the conservative stack range is skipped (registered roots are
// still scanned) rather than silently miscomputing a range.
func SetFramePointerFunc(f func() uintptr) {
	framePointerFunc = f
}

// PushRegisters spills the calling goroutine's callee-saved registers
// onto its stack and then invokes delegate, mirroring
// __sd_gc_push_registers (spec.md §6). Like FramePointer, a real
// implementation requires per-arch assembly; the default here simply
// calls delegate directly; a host can override it with
// SetPushRegistersFunc for an arch where register-pinned pointers must be
// made visible to the conservative scanner.
func PushRegisters(delegate func() bool) bool {
	if pushRegistersFunc != nil {
		return pushRegistersFunc(delegate)
	}
	return delegate()
}

var pushRegistersFunc func(func() bool) bool

// SetPushRegistersFunc registers a per-arch register-spill hook.
func SetPushRegistersFunc(f func(func() bool) bool) {
	pushRegistersFunc = f
}
