//go:build linux

package platform

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func init() {
	SetCPUIDFunc(sysGetcpu)
}

// sysGetcpu calls the getcpu(2) syscall directly via unix.Syscall:
// golang.org/x/sys/unix has no Getcpu wrapper, only the raw SYS_GETCPU
// trap number, and getcpu(2) only ever fails on a bad pointer, which cpu
// (a valid stack address) never is.
func sysGetcpu() (int, bool) {
	var cpu uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), 0, 0)
	if errno != 0 {
		return 0, false
	}
	return int(cpu), true
}
