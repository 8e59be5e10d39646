package engine

import "os"

// Classify extracts a file's apparent size and, when hard-link dedup is
// enabled and the platform exposes link-count/inode info, its InodeKey.
// A file with nlink <= 1 is "unique" and has no InodeKey; a file with
// nlink > 1 is "shared" and must be folded into a hard-link map instead
// of a unique-bytes accumulator. Stat failures are the caller's concern —
// Classify only interprets an already-obtained os.FileInfo.
func Classify(info os.FileInfo, dedupEnabled bool) (apparentSize uint64, key InodeKey, shared bool) {
	size := uint64(info.Size())
	if !dedupEnabled {
		return size, InodeKey{}, false
	}

	nlink, dev, ino, ok := statPlatform(info)
	if !ok {
		return size, InodeKey{}, false
	}
	if nlink <= 1 {
		return size, InodeKey{}, false
	}
	return size, InodeKey{Dev: dev, Ino: ino}, true
}

// SameDevice reports whether info lives on rootDevice. On platforms
// without real device ids this is unconditionally true, which makes
// one_file_system a documented no-op there (spec.md §9 open question —
// preserved as specified, not "fixed").
func SameDevice(info os.FileInfo, rootDevice uint64) bool {
	_, dev, _, ok := statPlatform(info)
	if !ok {
		return true
	}
	return dev == rootDevice
}

// DeviceOf returns the device id for info, or 0 when unavailable.
func DeviceOf(info os.FileInfo) uint64 {
	_, dev, _, ok := statPlatform(info)
	if !ok {
		return 0
	}
	return dev
}
