// Package tree builds the structural shape of a directory — names, parent
// links, file metadata — without computing any directory's aggregate size.
// Aggregate sizes are internal/engine's job: it walks the structure this
// package produces and fills in dir_sizes/file_sizes asynchronously, so a
// freshly built tree is immediately browsable with sizes appearing as the
// engine's computation converges.
package tree

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arlowe/dtree/internal/engine"
	"github.com/arlowe/dtree/internal/model"
)

// Options configures the structural walk.
type Options struct {
	ShowHidden      bool
	FollowSymlinks  bool
	ExcludePatterns []string
	Concurrency     int
	DisableGC       bool
}

// Counters tracks the progress of an in-flight Build for the scanning
// screen. The zero value is ready to use; a nil *Counters is also
// accepted by Build and simply disables progress tracking.
type Counters struct {
	Dirs   atomic.Int64
	Files  atomic.Int64
	Errors atomic.Int64
}

// Build walks path and returns its root DirNode. Every FileNode gets its
// real apparent size from stat; every DirNode's Size/Usage is left at zero
// until internal/engine computes it and SyncSizes writes it back. counters,
// if non-nil, is updated live so a caller can poll it from another
// goroutine while Build runs.
func Build(ctx context.Context, path string, opts Options, counters *Counters) (*model.DirNode, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "scan", Path: absPath, Err: os.ErrInvalid}
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	if opts.DisableGC {
		old := debug.SetGCPercent(-1)
		defer debug.SetGCPercent(old)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0) * 3
	}
	sem := make(chan struct{}, concurrency)

	excludeSet := make(map[string]struct{}, len(opts.ExcludePatterns))
	for _, p := range opts.ExcludePatterns {
		excludeSet[p] = struct{}{}
	}

	root := &model.DirNode{
		FileNode: model.FileNode{Name: absPath, Mtime: info.ModTime()},
	}

	var visited sync.Map
	visited.Store(absPath, true)

	w := &walker{
		scanRoot:   absPath,
		opts:       opts,
		excludeSet: excludeSet,
		sem:        sem,
		visited:    &visited,
		counters:   counters,
	}

	var wg sync.WaitGroup
	w.scanDir(ctx, absPath, root, &wg)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return root, err
	}
	return root, nil
}

type walker struct {
	scanRoot   string
	opts       Options
	excludeSet map[string]struct{}
	sem        chan struct{}
	visited    *sync.Map
	counters   *Counters
}

func (w *walker) addDir() {
	if w.counters != nil {
		w.counters.Dirs.Add(1)
	}
}

func (w *walker) addFile() {
	if w.counters != nil {
		w.counters.Files.Add(1)
	}
}

func (w *walker) addError() {
	if w.counters != nil {
		w.counters.Errors.Add(1)
	}
}

func (w *walker) spawn(ctx context.Context, path string, dir *model.DirNode, wg *sync.WaitGroup) {
	select {
	case w.sem <- struct{}{}:
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-w.sem }()
			w.scanDir(ctx, path, dir, wg)
		}()
	default:
		w.scanDir(ctx, path, dir, wg)
	}
}

func (w *walker) scanDir(ctx context.Context, dirPath string, parent *model.DirNode, wg *sync.WaitGroup) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	dir, err := os.Open(dirPath)
	if err != nil {
		parent.Flag |= model.FlagError
		w.addError()
		return
	}
	defer dir.Close()
	w.addDir()

	for {
		entries, readErr := dir.ReadDir(256)
		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return
			default:
			}
			w.handleEntry(ctx, dirPath, entry, parent, wg)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			parent.Flag |= model.FlagError
			w.addError()
			return
		}
	}
}

func (w *walker) handleEntry(ctx context.Context, dirPath string, entry os.DirEntry, parent *model.DirNode, wg *sync.WaitGroup) {
	name := entry.Name()
	if _, excluded := w.excludeSet[name]; excluded {
		return
	}
	if !w.opts.ShowHidden && len(name) > 0 && name[0] == '.' {
		return
	}

	fullPath := filepath.Join(dirPath, name)
	info, err := entry.Info()
	if err != nil {
		return
	}

	mode := entry.Type()
	infoMode := info.Mode()
	if mode == 0 {
		mode = infoMode.Type()
	}
	if infoMode.IsDir() {
		mode |= os.ModeDir
	}
	if infoMode&os.ModeSymlink != 0 {
		mode |= os.ModeSymlink
	}

	if isSpecialMode(mode) || isSpecialMode(infoMode) {
		return
	}

	switch {
	case mode.IsDir():
		w.handleDir(ctx, fullPath, name, info, parent, wg)
	case mode&os.ModeSymlink != 0 && w.opts.FollowSymlinks:
		w.handleSymlink(fullPath, name, parent, wg, ctx)
	default:
		parent.AddChild(&model.FileNode{
			Name:   name,
			Size:   info.Size(),
			Usage:  info.Size(),
			Mtime:  info.ModTime(),
			Parent: parent,
			Flag:   symlinkFlag(mode),
		})
		w.addFile()
	}
}

func (w *walker) handleDir(ctx context.Context, scanPath, name string, info os.FileInfo, parent *model.DirNode, wg *sync.WaitGroup) {
	if w.opts.FollowSymlinks {
		if resolved, err := filepath.EvalSymlinks(scanPath); err == nil {
			scanPath = resolved
		}
	}

	childDir := &model.DirNode{
		FileNode: model.FileNode{Name: name, Parent: parent, Mtime: info.ModTime()},
	}
	parent.AddChild(childDir)

	if _, loaded := w.visited.LoadOrStore(scanPath, true); loaded {
		return
	}
	w.spawn(ctx, scanPath, childDir, wg)
}

func (w *walker) handleSymlink(fullPath, name string, parent *model.DirNode, wg *sync.WaitGroup, ctx context.Context) {
	resolvedPath, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		parent.AddChild(model.NewBrokenSymlinkNode(name, parent))
		w.addError()
		return
	}
	targetInfo, err := os.Stat(resolvedPath)
	if err != nil {
		parent.AddChild(model.NewBrokenSymlinkNode(name, parent))
		w.addError()
		return
	}
	if isSpecialMode(targetInfo.Mode()) {
		return
	}
	if targetInfo.IsDir() {
		childDir := &model.DirNode{
			FileNode: model.FileNode{Name: name, Mtime: targetInfo.ModTime(), Flag: model.FlagSymlink, Parent: parent},
		}
		parent.AddChild(childDir)
		if isWithin(w.scanRoot, resolvedPath) {
			return
		}
		if _, loaded := w.visited.LoadOrStore(resolvedPath, true); loaded {
			return
		}
		w.spawn(ctx, resolvedPath, childDir, wg)
		return
	}
	parent.AddChild(&model.FileNode{
		Name:   name,
		Size:   targetInfo.Size(),
		Usage:  targetInfo.Size(),
		Mtime:  targetInfo.ModTime(),
		Flag:   model.FlagSymlink,
		Parent: parent,
	})
	w.addFile()
}

func symlinkFlag(mode os.FileMode) model.NodeFlag {
	if mode&os.ModeSymlink != 0 {
		return model.FlagSymlink
	}
	return model.FlagNone
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isSpecialMode(mode os.FileMode) bool {
	return mode&(os.ModeDevice|os.ModeCharDevice|os.ModeSocket|os.ModeNamedPipe|os.ModeIrregular) != 0
}

// ToSnapshot flattens root into the minimal shape internal/engine needs to
// drive a computation: every node's path, kind, depth and parent index.
func ToSnapshot(root *model.DirNode) engine.TreeSnapshot {
	var nodes []engine.Node
	var walk func(n *model.DirNode, depth int, parentIdx int)
	walk = func(n *model.DirNode, depth int, parentIdx int) {
		myIdx := len(nodes)
		nodes = append(nodes, engine.Node{Path: n.Path(), IsDir: true, Depth: depth, ParentIndex: parentIdx})
		for _, c := range n.ReadChildren() {
			if cd, ok := c.(*model.DirNode); ok {
				walk(cd, depth+1, myIdx)
			} else {
				nodes = append(nodes, engine.Node{Path: c.Path(), IsDir: false, Depth: depth + 1, ParentIndex: myIdx})
			}
		}
	}
	walk(root, 0, -1)
	return engine.TreeSnapshot{Nodes: nodes}
}

// ComputeItemCounts walks root bottom-up and sets every DirNode's ItemCount
// to its total recursive child count. It never touches Size/Usage: those
// come from internal/engine and SyncSizes, not from the structural walk.
func ComputeItemCounts(root *model.DirNode) int64 {
	var count int64
	for _, c := range root.ReadChildren() {
		count++
		if cd, ok := c.(*model.DirNode); ok {
			count += ComputeItemCounts(cd)
		}
	}
	root.ItemCount = count
	return count
}

// SyncSizes walks root and writes every directory's Size/Usage from the
// engine's caches, leaving directories the engine has not finished yet at
// their previous value (typically zero on the first pass, then monotonic
// as the cascade converges). File sizes are never touched here: a file's
// apparent size is already known from the structural walk.
func SyncSizes(root *model.DirNode, caches *engine.EngineCaches) {
	var walk func(n *model.DirNode)
	walk = func(n *model.DirNode) {
		if size, ok := caches.DirSize(n.Path()); ok {
			n.Size = int64(size)
			n.Usage = int64(size)
		}
		for _, c := range n.ReadChildren() {
			if cd, ok := c.(*model.DirNode); ok {
				walk(cd)
			}
		}
	}
	walk(root)
}
