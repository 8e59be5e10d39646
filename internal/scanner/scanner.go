package scanner

import (
	"context"

	"github.com/arlowe/dtree/internal/model"
)

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// ShowHidden includes hidden files/directories (starting with .)
	ShowHidden bool
	// FollowSymlinks follows symbolic links (default: false)
	FollowSymlinks bool
	// ExcludePatterns is a list of directory names to skip
	ExcludePatterns []string
	// DisableGC requests that garbage collection be disabled during the
	// scan; internal/remote.SFTPScanner does not read it
	DisableGC bool
	// Concurrency overrides the default semaphore count (0 = auto)
	Concurrency int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() ScanOptions {
	return ScanOptions{
		ShowHidden:      true,
		FollowSymlinks:  false,
		ExcludePatterns: []string{},
		DisableGC:       false,
		Concurrency:     0,
	}
}

// Scanner is the interface for directory scanning. internal/remote.SFTPScanner
// implements it for remote roots; local scans go through internal/tree.Build
// instead, which splits structure from size rather than returning both at once.
type Scanner interface {
	// Scan scans the given path and returns the root DirNode.
	// Progress updates are sent on the progress channel.
	Scan(ctx context.Context, path string, opts ScanOptions, progress chan<- Progress) (*model.DirNode, error)
}
