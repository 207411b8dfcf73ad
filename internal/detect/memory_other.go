//go:build !linux

package detect

// availableMemory is unsupported off Linux; callers fall back to the
// configured flag only.
func availableMemory() (uint64, bool) {
	return 0, false
}
