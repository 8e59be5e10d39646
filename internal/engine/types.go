// Package engine implements the asynchronous directory-size computation
// core: a bounded worker pool walks tree-visible directories one level at
// a time, a single orchestrator goroutine stitches the results into a
// deepest-first cascade that aggregates bytes up the tree with per-subtree
// hard-link deduplication, and a generation counter lets a new computation
// supersede an in-flight one without waiting for it to unwind.
package engine

// InodeKey identifies a file uniquely across a scanned root using its
// device and inode number. Using the inode alone would alias files that
// happen to share an inode number on different filesystems.
type InodeKey struct {
	Dev uint64
	Ino uint64
}

// InodeMap maps an inode to the apparent size recorded for it. All links
// to the same inode have the same apparent size, so first-seen-wins when
// merging two maps that both contain the same key.
type InodeMap map[InodeKey]uint64

// LocalResult is a directory's own-level contribution: files directly
// inside the directory, plus any fully-walked non-tree child subtrees.
// Tree-visible child directories are never folded in here; the cascade
// accounts for them separately so each directory's finalisation combines
// exactly one LocalResult plus its children's already-finalised totals.
type LocalResult struct {
	UniqueSum uint64
	Hardlinks InodeMap
}

func newLocalResult() LocalResult {
	return LocalResult{Hardlinks: make(InodeMap)}
}

// mergeInto folds src into dst in place, using first-seen-size-wins for
// any inode key present in both.
func mergeInto(dst InodeMap, src InodeMap) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}

// mergeLarger merges a and b using the larger map as the base, per
// spec: merging into the larger map on each finalisation keeps the
// amortised cost of a whole-tree cascade linear in total hard-link
// entries rather than quadratic.
func mergeLarger(a, b InodeMap) InodeMap {
	if len(a) >= len(b) {
		mergeInto(a, b)
		return a
	}
	mergeInto(b, a)
	return b
}

func sumValues(m InodeMap) uint64 {
	var total uint64
	for _, v := range m {
		total = saturatingAdd(total, v)
	}
	return total
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// DirJob is a tree-visible directory queued for one level of enumeration.
type DirJob struct {
	Path string
}

// updateKind tags the payload carried by a SizeUpdate.
type updateKind uint8

const (
	updateFile updateKind = iota
	updateDirLocalDone
	updateWorkerDone
)

// SizeUpdate is the tagged union of messages a worker emits on the
// UpdateStream: a single file's size, a directory's finished LocalResult,
// or a worker's terminal "I am done" signal.
type SizeUpdate struct {
	kind   updateKind
	path   string
	size   uint64
	result LocalResult
}

// FileUpdate builds a File{path, size} update.
func FileUpdate(path string, size uint64) SizeUpdate {
	return SizeUpdate{kind: updateFile, path: path, size: size}
}

// DirLocalDoneUpdate builds a DirLocalDone{dir, result} update.
func DirLocalDoneUpdate(dir string, result LocalResult) SizeUpdate {
	return SizeUpdate{kind: updateDirLocalDone, path: dir, result: result}
}

// WorkerDoneUpdate builds a WorkerDone update.
func WorkerDoneUpdate() SizeUpdate {
	return SizeUpdate{kind: updateWorkerDone}
}

// Node is the minimal shape the cascade needs from the caller's already-
// built tree: a path, whether it is a directory, its depth from the root,
// and the index of its parent directory node (-1 for the root).
type Node struct {
	Path        string
	IsDir       bool
	Depth       int
	ParentIndex int
}

// TreeSnapshot is the read-only view of the visible tree the orchestrator
// consumes for the lifetime of exactly one computation.
type TreeSnapshot struct {
	Nodes []Node
}
