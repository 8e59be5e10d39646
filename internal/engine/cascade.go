package engine

import "sort"

// Options carries the per-computation configuration read once at
// StartComputation (spec.md §6): dedup policy, one-file-system policy,
// and the root's device id (supplied by the caller to avoid repeated
// root-statting inside every worker).
type Options struct {
	DedupHardLinks bool
	OneFileSystem  bool
	RootDevice     uint64
}

// ComputeState is the orchestrator's private bookkeeping for exactly one
// computation. It is created by StartComputation and mutated only by
// ApplyUpdate/Finalise/RequestCancel running on the orchestrator
// goroutine — workers never see it.
type ComputeState struct {
	Generation uint64
	Cancel     *CancelFlag

	// JobCount is the number of directories that had to be queued as
	// fresh jobs (i.e. were not already in caches.dirLocalSums). Tests
	// use this to assert cache reuse (spec.md §8 property 5/6).
	JobCount int

	remainingWorkers int

	orderedDirs       []string
	parentOf          map[string]string
	pendingChildren   map[string]int
	childrenUnique    map[string]uint64
	childrenHardlinks map[string]InodeMap
	localDone         map[string]LocalResult
	finished          map[string]struct{}
	treeDirs          map[string]struct{}
}

// StartComputation builds a fresh ComputeState from the current tree and
// caches, seeds cached LocalResults, enqueues the rest as jobs, and spawns
// a worker pool sized to the uncached job count. It does not touch
// caches.DirSizes: the previous generation's totals stay visible until
// this generation's Finalise calls overwrite them entry by entry, which
// avoids a flicker where totals vanish for a frame (spec.md §9).
func StartComputation(snapshot TreeSnapshot, caches *EngineCaches, opts Options, generation uint64, availableParallelism int, stream *UpdateStream) *ComputeState {
	treeDirs := make(map[string]struct{})
	for _, n := range snapshot.Nodes {
		if n.IsDir {
			treeDirs[n.Path] = struct{}{}
		}
	}

	parentOf := make(map[string]string)
	pendingChildren := make(map[string]int)
	childrenUnique := make(map[string]uint64)
	childrenHardlinks := make(map[string]InodeMap)
	localDone := make(map[string]LocalResult)

	type depthPath struct {
		path  string
		depth int
	}
	var dirs []depthPath

	for _, n := range snapshot.Nodes {
		if !n.IsDir {
			continue
		}
		dirs = append(dirs, depthPath{path: n.Path, depth: n.Depth})
		childrenUnique[n.Path] = 0
		if n.ParentIndex >= 0 {
			parentPath := snapshot.Nodes[n.ParentIndex].Path
			parentOf[n.Path] = parentPath
			pendingChildren[parentPath]++
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].depth != dirs[j].depth {
			return dirs[i].depth > dirs[j].depth
		}
		return dirs[i].path < dirs[j].path
	})

	ordered := make([]string, len(dirs))
	var jobs []DirJob
	for i, d := range dirs {
		ordered[i] = d.path
		if cached, ok := caches.loadLocalSum(d.path); ok {
			localDone[d.path] = cached
		} else {
			jobs = append(jobs, DirJob{Path: d.path})
		}
	}

	state := &ComputeState{
		Generation:        generation,
		Cancel:            NewCancelFlag(),
		JobCount:          len(jobs),
		orderedDirs:       ordered,
		parentOf:          parentOf,
		pendingChildren:   pendingChildren,
		childrenUnique:    childrenUnique,
		childrenHardlinks: childrenHardlinks,
		localDone:         localDone,
		finished:          make(map[string]struct{}),
		treeDirs:          treeDirs,
	}

	// Fold in whatever is already finalisable purely from cached local
	// sums before any worker has produced a single message. Without
	// this, a computation where every directory was cache-hit (zero
	// jobs) would never trigger a Finalise pass, since Finalise is
	// otherwise only invoked in response to incoming SizeUpdates.
	Finalise(state, caches)

	workerCount := WorkerThreadCount(availableParallelism, len(jobs))
	if workerCount > 0 {
		ctx := poolContext{
			treeDirs:      treeDirs,
			dedupEnabled:  opts.DedupHardLinks,
			oneFileSystem: opts.OneFileSystem,
			rootDevice:    opts.RootDevice,
		}
		state.remainingWorkers = workerCount
		spawnWorkers(newJobQueue(jobs), ctx, stream, state.Cancel, generation, workerCount)
	}

	return state
}

// ApplyUpdate folds a single SizeUpdate into state/caches and reports
// whether a Finalise pass is now warranted. Updates tagged with a stale
// generation are silently discarded (spec.md §4.5/§7).
func ApplyUpdate(state *ComputeState, caches *EngineCaches, generation uint64, update SizeUpdate) bool {
	if generation != state.Generation {
		return false
	}
	switch update.kind {
	case updateFile:
		caches.fileSizes.Store(update.path, update.size)
		return false
	case updateDirLocalDone:
		state.localDone[update.path] = update.result
		caches.storeLocalSum(update.path, update.result)
		return true
	case updateWorkerDone:
		state.remainingWorkers--
		return false
	default:
		return false
	}
}

// Finalise performs one forward pass over the depth-sorted directory
// list, finalising every directory whose LocalResult has arrived and
// whose tree-visible children have all already finalised. Because the
// pass is deepest-first, a child's contribution always reaches its
// parent's accumulators before the parent is considered, making one
// O(n) pass sufficient for the directories ready this round; directories
// still missing a LocalResult or a pending child simply wait for a
// later call.
func Finalise(state *ComputeState, caches *EngineCaches) {
	for _, d := range state.orderedDirs {
		if _, done := state.finished[d]; done {
			continue
		}
		local, hasLocal := state.localDone[d]
		if !hasLocal {
			continue
		}
		if state.pendingChildren[d] != 0 {
			continue
		}

		delete(state.localDone, d)

		childUnique := state.childrenUnique[d]
		childHardlinks := state.childrenHardlinks[d]
		if childHardlinks == nil {
			childHardlinks = make(InodeMap)
		}

		totalUnique := saturatingAdd(local.UniqueSum, childUnique)

		// Merge into copies so the cached LocalResult (which may be
		// reused by a future computation via selective invalidation)
		// is never mutated in place.
		localCopy := copyInodeMap(local.Hardlinks)
		merged := mergeLarger(localCopy, childHardlinks)
		hardlinkBytes := sumValues(merged)
		total := saturatingAdd(totalUnique, hardlinkBytes)

		caches.dirSizes.Store(d, total)
		state.finished[d] = struct{}{}

		if parent, ok := state.parentOf[d]; ok {
			state.pendingChildren[parent]--
			state.childrenUnique[parent] = saturatingAdd(state.childrenUnique[parent], totalUnique)
			existing := state.childrenHardlinks[parent]
			if existing == nil {
				state.childrenHardlinks[parent] = merged
			} else {
				state.childrenHardlinks[parent] = mergeLarger(existing, merged)
			}
		}
	}
}

// Converged reports whether every tree directory in state has finalised.
func (s *ComputeState) Converged() bool {
	return len(s.finished) == len(s.orderedDirs)
}

// RequestCancel sets the shared cancel flag for state. Workers finish
// their current entry and terminate; in-flight messages already on the
// stream are left to be filtered out by generation mismatch rather than
// discarded explicitly (spec.md §4.5).
func RequestCancel(state *ComputeState) {
	state.Cancel.Set()
}

func copyInodeMap(m InodeMap) InodeMap {
	cp := make(InodeMap, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
