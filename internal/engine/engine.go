package engine

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// EngineCaches are the long-lived results that span computations: every
// generation reads and writes into the same instance, which is how
// incremental recomputation and selective invalidation work (spec.md §3).
//
// dirSizes and fileSizes are read by a UI goroutine on every rendered
// frame while the orchestrator goroutine concurrently writes them during
// Finalise/ApplyUpdate, so they use a sharded concurrent map
// (github.com/puzpuzpuz/xsync/v3) rather than a mutex-guarded plain map —
// SPEC_FULL.md §3 explains why this single piece of state departs from
// spec.md §5's "only three things are shared between threads" (that list
// describes sharing among *worker* goroutines; the UI/orchestrator split
// is a Go-specific addition this rewrite has to account for).
//
// dirLocalSums is touched from more than one goroutine — the consumer
// goroutine stores finished LocalResults, while the caller's goroutine
// (the UI) invalidates single entries and seeds new generations from it —
// so it is a plain map guarded by mu.
type EngineCaches struct {
	fileSizes *xsync.MapOf[string, uint64]
	dirSizes  *xsync.MapOf[string, uint64]

	mu           sync.Mutex
	dirLocalSums map[string]LocalResult
}

// NewEngineCaches returns an empty cache set.
func NewEngineCaches() *EngineCaches {
	return &EngineCaches{
		fileSizes:    xsync.NewMapOf[string, uint64](),
		dirSizes:     xsync.NewMapOf[string, uint64](),
		dirLocalSums: make(map[string]LocalResult),
	}
}

// DirSize returns the authoritative total for dir, if finalised yet.
func (c *EngineCaches) DirSize(dir string) (uint64, bool) {
	return c.dirSizes.Load(dir)
}

// FileSize returns the apparent size recorded for path, if seen yet.
func (c *EngineCaches) FileSize(path string) (uint64, bool) {
	return c.fileSizes.Load(path)
}

// RangeDirSizes calls fn for every currently known directory total.
func (c *EngineCaches) RangeDirSizes(fn func(dir string, size uint64) bool) {
	c.dirSizes.Range(fn)
}

// InvalidateDir removes dir's cached LocalResult, forcing the next
// computation to re-enqueue it as a job. This is the selective-
// invalidation protocol of spec.md §6: call it for exactly the directory
// whose set of tree-children just changed (e.g. the UI expanded it),
// never the whole cache.
func (c *EngineCaches) InvalidateDir(dir string) {
	c.mu.Lock()
	delete(c.dirLocalSums, dir)
	c.mu.Unlock()
}

func (c *EngineCaches) loadLocalSum(dir string) (LocalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.dirLocalSums[dir]
	return v, ok
}

func (c *EngineCaches) storeLocalSum(dir string, result LocalResult) {
	c.mu.Lock()
	c.dirLocalSums[dir] = result
	c.mu.Unlock()
}

// Engine owns one persistent UpdateStream spanning every generation of
// computation, plus the long-lived caches. A single background goroutine
// consumes the stream for the engine's lifetime; starting a new
// computation never starts a new consumer, it only swaps which
// ComputeState incoming updates are checked against (spec.md §5 — "the
// orchestrator ... replaces ... handle", no cooperative join of old
// workers).
type Engine struct {
	Caches *EngineCaches

	stream               *UpdateStream
	availableParallelism int

	mu         sync.Mutex
	current    *ComputeState
	generation uint64
	closed     bool
}

// NewEngine creates an Engine and starts its consumer goroutine.
// availableParallelism should normally be runtime.GOMAXPROCS(0); it is a
// parameter so tests can force specific worker counts.
func NewEngine(availableParallelism int) *Engine {
	e := &Engine{
		Caches:               NewEngineCaches(),
		stream:               NewUpdateStream(),
		availableParallelism: availableParallelism,
	}
	go e.consume()
	return e
}

func (e *Engine) consume() {
	for {
		batch, ok := e.stream.Recv()
		if !ok {
			return
		}
		e.mu.Lock()
		cur := e.current
		if cur != nil {
			needsFinalise := false
			for _, gu := range batch {
				if ApplyUpdate(cur, e.Caches, gu.generation, gu.update) {
					needsFinalise = true
				}
			}
			if needsFinalise {
				Finalise(cur, e.Caches)
			}
		}
		e.mu.Unlock()
	}
}

// StartComputation begins a new generation over snapshot, cancelling
// (but not waiting for) whatever computation was previously running.
// Selective invalidation (EngineCaches.InvalidateDir) must be applied by
// the caller before calling this, for any directory whose tree-visible
// children changed.
func (e *Engine) StartComputation(snapshot TreeSnapshot, opts Options) *ComputeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		RequestCancel(e.current)
	}
	e.generation++
	gen := e.generation

	state := StartComputation(snapshot, e.Caches, opts, gen, e.availableParallelism, e.stream)
	e.current = state
	return state
}

// Current returns the ComputeState of the most recently started
// computation, or nil if none has started yet.
func (e *Engine) Current() *ComputeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Close shuts down the engine's consumer goroutine. Safe to call once;
// not safe to call StartComputation afterward.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.current != nil {
		RequestCancel(e.current)
	}
	e.mu.Unlock()
	e.stream.Close()
}
