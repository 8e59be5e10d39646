package engine

import (
	"os"
	"path/filepath"
	"sync/atomic"
)

// CancelFlag is a relaxed-ordering shared boolean: workers poll it
// frequently, the orchestrator sets it once per computation. A plain
// atomic.Bool (spec.md §5 point 2).
type CancelFlag struct {
	flag atomic.Bool
}

// NewCancelFlag returns a fresh, unset flag.
func NewCancelFlag() *CancelFlag { return &CancelFlag{} }

// Set requests cooperative termination.
func (c *CancelFlag) Set() { c.flag.Store(true) }

// IsSet reports whether cancellation has been requested.
func (c *CancelFlag) IsSet() bool { return c.flag.Load() }

// SubtreeWalker sums a directory that is not itself tree-visible (hidden,
// filtered, or beyond display depth) into a single LocalResult. It is
// single-threaded and used inline by a WorkerPool worker whenever it
// encounters a non-tree child subdirectory.
type SubtreeWalker struct {
	DedupEnabled  bool
	OneFileSystem bool
	RootDevice    uint64
}

// Walk performs an explicit-stack depth-first walk of root (never
// recursion — spec.md §4.2) and returns its accumulated LocalResult. It
// never follows symlinks and never surfaces an error: unreadable
// directories and unstatable entries are silently skipped, and a set
// cancel flag returns the partial result accumulated so far.
func (w *SubtreeWalker) Walk(root string, cancel *CancelFlag) LocalResult {
	result := newLocalResult()
	stack := []string{root}

	for len(stack) > 0 {
		if cancel != nil && cancel.IsSet() {
			return result
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if cancel != nil && cancel.IsSet() {
				return result
			}

			full := filepath.Join(dir, entry.Name())
			info, err := os.Lstat(full)
			if err != nil {
				continue
			}

			switch {
			case info.Mode()&os.ModeSymlink != 0:
				result.UniqueSum = saturatingAdd(result.UniqueSum, uint64(info.Size()))

			case info.IsDir():
				if w.OneFileSystem && !SameDevice(info, w.RootDevice) {
					continue
				}
				stack = append(stack, full)

			case info.Mode().IsRegular():
				size, key, shared := Classify(info, w.DedupEnabled)
				if shared {
					if _, exists := result.Hardlinks[key]; !exists {
						result.Hardlinks[key] = size
					}
				} else {
					result.UniqueSum = saturatingAdd(result.UniqueSum, size)
				}

			default:
				// devices, sockets, pipes, irregular files: not counted.
			}
		}
	}

	return result
}
