package engine

import (
	"os"
	"path/filepath"
	"runtime"
)

// poolContext is the read-only context shared (by value/copy of the
// pointer, never mutated) with every worker: which directories are
// already tree-visible (so a worker must not re-walk them — the cascade
// will cover them as their own jobs), and the dedup/one-file-system
// policy for this computation.
type poolContext struct {
	treeDirs      map[string]struct{}
	dedupEnabled  bool
	oneFileSystem bool
	rootDevice    uint64
}

// WorkerThreadCount computes the spec's worker count: bounded by
// available parallelism and by how much work there actually is, never
// zero when there is at least one job.
func WorkerThreadCount(availableParallelism, jobCount int) int {
	if jobCount <= 0 {
		return 0
	}
	n := availableParallelism
	if jobCount < n {
		n = jobCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// spawnWorkers starts threadCount workers that pop jobs from queue until
// it is empty or cancellation is requested, and emit SizeUpdates tagged
// with generation onto stream. Returns immediately; callers do not join
// the returned goroutines (spec.md §5 — "no cooperative join").
func spawnWorkers(queue *jobQueue, ctx poolContext, stream *UpdateStream, cancel *CancelFlag, generation uint64, threadCount int) {
	for i := 0; i < threadCount; i++ {
		go runWorker(queue, ctx, stream, cancel, generation)
	}
}

func runWorker(queue *jobQueue, ctx poolContext, stream *UpdateStream, cancel *CancelFlag, generation uint64) {
	for {
		if cancel.IsSet() {
			break
		}
		job, ok := queue.pop()
		if !ok {
			break
		}
		result := enumerateOneLevel(job.Path, ctx, stream, cancel, generation)
		stream.send(generation, DirLocalDoneUpdate(job.Path, result))
	}
	stream.send(generation, WorkerDoneUpdate())
}

// enumerateOneLevel performs the single-level enumeration of dir a
// WorkerPool worker is responsible for (spec.md §4.3). Tree-visible
// subdirectories are left for their own job; non-tree subdirectories are
// fully walked inline via SubtreeWalker and folded into this directory's
// LocalResult. A read failure on dir itself yields an empty LocalResult,
// matching spec.md §7's taxonomy.
func enumerateOneLevel(dir string, ctx poolContext, stream *UpdateStream, cancel *CancelFlag, generation uint64) LocalResult {
	result := newLocalResult()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return result
	}

	walker := &SubtreeWalker{
		DedupEnabled:  ctx.dedupEnabled,
		OneFileSystem: ctx.oneFileSystem,
		RootDevice:    ctx.rootDevice,
	}

	for _, entry := range entries {
		if cancel.IsSet() {
			break
		}

		full := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			info, err = os.Lstat(full)
			if err != nil {
				continue
			}
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			stream.send(generation, FileUpdate(full, uint64(info.Size())))
			result.UniqueSum = saturatingAdd(result.UniqueSum, uint64(info.Size()))

		case info.IsDir():
			if _, visible := ctx.treeDirs[full]; visible {
				continue
			}
			if ctx.oneFileSystem && !SameDevice(info, ctx.rootDevice) {
				continue
			}
			sub := walker.Walk(full, cancel)
			result.UniqueSum = saturatingAdd(result.UniqueSum, sub.UniqueSum)
			mergeInto(result.Hardlinks, sub.Hardlinks)

		case info.Mode().IsRegular():
			stream.send(generation, FileUpdate(full, uint64(info.Size())))
			size, key, shared := Classify(info, ctx.dedupEnabled)
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

	return result
}

// defaultParallelism reports the host's available parallelism, the
// upper bound spec.md §4.3 weighs against the job count.
func defaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}
