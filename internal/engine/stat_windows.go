//go:build windows

package engine

import "os"

// statPlatform reports no link-count/inode info on Windows: the core
// runs the same code paths, but classify always returns a bare size, per
// spec.md §9 ("no conditional compilation should leak into the
// algorithm" — only this accessor is platform-specific).
func statPlatform(info os.FileInfo) (nlink uint64, dev uint64, ino uint64, ok bool) {
	return 0, 0, 0, false
}
