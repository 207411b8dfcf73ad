//go:build linux

package detect

import "golang.org/x/sys/unix"

// availableMemory returns the host's free memory in bytes, counting
// reclaimable buffer pages.
func availableMemory() (uint64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * unit, true
}
