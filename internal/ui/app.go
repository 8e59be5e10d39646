package ui

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/arlowe/dtree/internal/engine"
	"github.com/arlowe/dtree/internal/model"
	"github.com/arlowe/dtree/internal/ops"
	"github.com/arlowe/dtree/internal/scanner"
	"github.com/arlowe/dtree/internal/search"
	"github.com/arlowe/dtree/internal/tree"
	"github.com/arlowe/dtree/internal/ui/components"
	"github.com/arlowe/dtree/internal/ui/style"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// ViewMode represents the current view.
type ViewMode int

const (
	ViewTree ViewMode = iota
	ViewTreemap
	ViewFileType
	ViewInspector
)

// AppState represents the application state.
type AppState int

const (
	StateScanning AppState = iota
	StateBrowsing
	StateConfirmDelete
	StateHelp
	StateExporting
	StateSearch
)

// ScanDoneMsg is sent when the structural walk completes. Directory sizes
// are not known yet at this point — they arrive asynchronously as the
// engine's computation converges, surfaced on later tickMsgs.
type ScanDoneMsg struct {
	Root       *model.DirNode
	RootDevice uint64
	Err        error
}

// DeleteDoneMsg is sent when deletion completes.
type DeleteDoneMsg struct {
	Deleted []string
	Errors  []error
}

// ExportDoneMsg is sent when export completes.
type ExportDoneMsg struct {
	Path string
	Err  error
}

type tickMsg time.Time

// App is the root Bubble Tea model.
type App struct {
	ScanPath      string
	TreeOptions   tree.Options
	EngineOptions engine.Options
	ImportPath    string
	ExportPath    string
	Version       string

	state    AppState
	viewMode ViewMode
	width    int
	height   int

	root        *model.DirNode
	currentDir  *model.DirNode
	navStack    []*model.DirNode
	sortConfig  model.SortConfig
	sortedItems []model.TreeNode

	cursor int
	offset int

	marked      map[string]bool
	markedItems []components.ConfirmItem

	useApparent bool
	showHidden  bool
	imported    bool

	eng         *engine.Engine
	searchIndex *search.Index
	searchQuery string
	lastMatch   string

	buildCounters tree.Counters
	scanStart     time.Time
	buildCancel   context.CancelFunc
	buildCancelMu sync.Mutex

	theme  style.Theme
	keys   KeyMap
	layout style.Layout

	statusMsg string
	fatalErr  error
}

func (a *App) setBuildCancel(cancel context.CancelFunc) {
	a.buildCancelMu.Lock()
	a.buildCancel = cancel
	a.buildCancelMu.Unlock()
}

func (a *App) callBuildCancel() {
	a.buildCancelMu.Lock()
	if a.buildCancel != nil {
		a.buildCancel()
	}
	a.buildCancelMu.Unlock()
}

// NewApp creates a new App model that will walk scanPath and drive an
// engine computation over it.
func NewApp(scanPath string, treeOpts tree.Options, engOpts engine.Options) *App {
	return &App{
		ScanPath:      scanPath,
		TreeOptions:   treeOpts,
		EngineOptions: engOpts,
		state:         StateScanning,
		viewMode:      ViewTree,
		sortConfig:    model.DefaultSort(),
		marked:        make(map[string]bool),
		useApparent:   false,
		showHidden:    treeOpts.ShowHidden,
		theme:         style.DefaultTheme(),
		keys:          DefaultKeyMap(),
	}
}

// NewAppFromImport creates an App that loads a pre-computed tree from a
// JSON file. Imported trees already carry final sizes and item counts,
// so no engine computation is started.
func NewAppFromImport(importPath string) *App {
	return &App{
		ImportPath:  importPath,
		state:       StateScanning,
		viewMode:    ViewTree,
		sortConfig:  model.DefaultSort(),
		marked:      make(map[string]bool),
		useApparent: false,
		showHidden:  true,
		imported:    true,
		theme:       style.DefaultTheme(),
		keys:        DefaultKeyMap(),
	}
}

func (a *App) Init() tea.Cmd {
	if a.ImportPath != "" {
		return a.importCmd()
	}
	a.scanStart = time.Now()
	return tea.Batch(a.buildCmd(), a.tickCmd())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout = style.NewLayout(msg.Width, msg.Height)
		return a, nil

	case ScanDoneMsg:
		if msg.Err != nil {
			a.fatalErr = msg.Err
			return a, tea.Quit
		}
		a.fatalErr = nil
		a.root = msg.Root
		a.currentDir = msg.Root
		a.navStack = nil
		a.cursor = 0
		a.offset = 0
		a.state = StateBrowsing
		tree.ComputeItemCounts(a.root)
		if !a.imported {
			a.EngineOptions.RootDevice = msg.RootDevice
			a.startComputation()
		}
		a.refreshSorted()
		return a, tea.ClearScreen

	case tickMsg:
		if a.state == StateScanning {
			return a, a.tickCmd()
		}
		if a.eng != nil && a.root != nil {
			tree.SyncSizes(a.root, a.eng.Caches)
			a.refreshSorted()
		}
		return a, a.tickCmd()

	case DeleteDoneMsg:
		for _, name := range msg.Deleted {
			a.currentDir.RemoveChild(name)
		}
		components.InvalidateFileTypeCache()
		a.state = StateBrowsing
		a.clearMarks()
		if a.eng != nil {
			a.eng.Caches.InvalidateDir(a.currentDir.Path())
			a.startComputation()
		}
		tree.ComputeItemCounts(a.root)
		a.refreshSorted()
		if a.cursor >= len(a.sortedItems) {
			a.cursor = len(a.sortedItems) - 1
		}
		if a.cursor < 0 {
			a.cursor = 0
		}
		if len(msg.Errors) > 0 {
			a.statusMsg = fmt.Sprintf("Delete: %d failed (%v)", len(msg.Errors), msg.Errors[0])
		} else if len(msg.Deleted) > 0 {
			a.statusMsg = fmt.Sprintf("Deleted %d item(s)", len(msg.Deleted))
		}
		return a, tea.ClearScreen

	case ExportDoneMsg:
		a.state = StateBrowsing
		if msg.Err != nil {
			a.statusMsg = fmt.Sprintf("Export failed: %v", msg.Err)
		} else {
			a.statusMsg = fmt.Sprintf("Exported to %s", msg.Path)
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// startComputation snapshots the current tree and (re)starts the
// engine's size computation plus the filename search index over it. It
// is called after a fresh scan, after a rescan, and after any structural
// change (delete) that invalidates cached per-directory sums.
func (a *App) startComputation() {
	if a.eng == nil {
		a.eng = engine.NewEngine(runtime.GOMAXPROCS(0))
	}
	snap := tree.ToSnapshot(a.root)
	a.eng.StartComputation(snap, a.EngineOptions)
	a.searchIndex = search.Build(snap)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.ForceQuit) {
		a.callBuildCancel()
		return a, tea.Quit
	}

	switch a.state {
	case StateScanning:
		if key.Matches(msg, a.keys.Quit) {
			a.callBuildCancel()
			return a, tea.Quit
		}
		return a, nil

	case StateHelp:
		if key.Matches(msg, a.keys.Help) || msg.String() == "esc" {
			a.state = StateBrowsing
			return a, tea.ClearScreen
		}
		return a, nil

	case StateConfirmDelete:
		if key.Matches(msg, a.keys.ConfirmYes) {
			return a, a.executeDelete()
		}
		if key.Matches(msg, a.keys.ConfirmNo) {
			a.state = StateBrowsing
			return a, tea.ClearScreen
		}
		return a, nil

	case StateSearch:
		return a.handleSearchKey(msg)

	case StateBrowsing:
		return a.handleBrowsingKey(msg)
	}

	return a, nil
}

func (a *App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.state = StateBrowsing
		a.searchQuery = ""
		return a, tea.ClearScreen
	case "enter":
		if a.searchIndex != nil {
			if matches := a.searchIndex.Find(a.searchQuery); len(matches) > 0 {
				a.jumpToPath(matches[0])
				a.lastMatch = matches[0]
			}
		}
		a.state = StateBrowsing
		return a, tea.ClearScreen
	case "tab":
		// Cycle through matches without leaving search mode, so repeated
		// tabs walk every hit for the current query.
		if a.searchIndex != nil {
			if matches := a.searchIndex.Find(a.searchQuery); len(matches) > 0 {
				if next, ok := search.Next(matches, a.lastMatch); ok {
					a.jumpToPath(next)
					a.lastMatch = next
				}
			}
		}
		return a, nil
	case "backspace":
		if len(a.searchQuery) > 0 {
			r := []rune(a.searchQuery)
			a.searchQuery = string(r[:len(r)-1])
		}
		return a, nil
	}
	if len(msg.Runes) > 0 {
		a.searchQuery += string(msg.Runes)
	}
	return a, nil
}

func (a *App) handleBrowsingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.statusMsg = ""
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.state = StateHelp
		return a, tea.ClearScreen

	case key.Matches(msg, a.keys.Search):
		a.state = StateSearch
		a.searchQuery = ""
		return a, tea.ClearScreen

	case key.Matches(msg, a.keys.Up):
		a.moveCursor(-1)
	case key.Matches(msg, a.keys.Down):
		a.moveCursor(1)
	case key.Matches(msg, a.keys.Enter), key.Matches(msg, a.keys.Right):
		a.enterDir()
	case key.Matches(msg, a.keys.Left), key.Matches(msg, a.keys.Back):
		a.goBack()

	case key.Matches(msg, a.keys.ViewTree):
		a.viewMode = ViewTree
		return a, tea.ClearScreen
	case key.Matches(msg, a.keys.ViewTreemap):
		a.viewMode = ViewTreemap
		return a, tea.ClearScreen
	case key.Matches(msg, a.keys.ViewFileType):
		a.viewMode = ViewFileType
		return a, tea.ClearScreen
	case key.Matches(msg, a.keys.ViewInspector):
		a.viewMode = ViewInspector
		return a, tea.ClearScreen

	case key.Matches(msg, a.keys.SortSize):
		a.toggleSort(model.SortBySize)
	case key.Matches(msg, a.keys.SortName):
		a.toggleSort(model.SortByName)
	case key.Matches(msg, a.keys.SortCount):
		a.toggleSort(model.SortByCount)
	case key.Matches(msg, a.keys.SortMtime):
		a.toggleSort(model.SortByMtime)

	case key.Matches(msg, a.keys.ToggleApparent):
		a.useApparent = !a.useApparent
		a.refreshSorted()
	case key.Matches(msg, a.keys.ToggleHidden):
		a.showHidden = !a.showHidden
		a.clearMarks()
		a.refreshSorted()

	case key.Matches(msg, a.keys.Mark):
		if a.viewMode == ViewTree {
			a.toggleMark()
		}

	case key.Matches(msg, a.keys.Delete):
		if a.viewMode == ViewTree {
			cmd := a.prepareDelete()
			if a.state == StateConfirmDelete {
				return a, tea.Batch(cmd, tea.ClearScreen)
			}
			return a, cmd
		}

	case key.Matches(msg, a.keys.Export):
		return a, a.exportCmd()

	case key.Matches(msg, a.keys.Rescan):
		if a.imported {
			a.statusMsg = "Rescan is disabled in import mode"
			return a, nil
		}
		a.clearMarks()
		a.navStack = nil
		a.cursor = 0
		a.offset = 0
		a.state = StateScanning
		a.scanStart = time.Now()
		a.buildCounters = tree.Counters{}
		return a, tea.Batch(tea.ClearScreen, a.buildCmd(), a.tickCmd())
	}

	return a, nil
}

// jumpToPath moves the browser's current directory and cursor to the
// node at target, an absolute path produced by the search index. It
// walks the tree from root following target's path components, so it
// works regardless of how deep the match is or which directory is
// currently open.
func (a *App) jumpToPath(target string) {
	if a.root == nil {
		return
	}
	rel := relativeComponents(a.root.Path(), target)
	if rel == nil || len(rel) == 0 {
		return
	}

	chain := []*model.DirNode{a.root}
	cur := a.root
	for i := 0; i < len(rel)-1; i++ {
		next := findChildDir(cur, rel[i])
		if next == nil {
			return
		}
		chain = append(chain, next)
		cur = next
	}

	a.navStack = append([]*model.DirNode{}, chain[:len(chain)-1]...)
	a.currentDir = cur
	a.clearMarks()
	a.refreshSorted()

	targetName := rel[len(rel)-1]
	for i, item := range a.sortedItems {
		if item.GetName() == targetName {
			a.cursor = i
			break
		}
	}
	a.offset = 0
}

func findChildDir(dir *model.DirNode, name string) *model.DirNode {
	for _, c := range dir.ReadChildren() {
		if cd, ok := c.(*model.DirNode); ok && cd.Name == name {
			return cd
		}
	}
	return nil
}

// relativeComponents splits target into path components relative to
// root, or returns nil if target is not under root or equals it.
func relativeComponents(root, target string) []string {
	if len(target) <= len(root) || target[:len(root)] != root {
		return nil
	}
	rest := target[len(root):]
	for len(rest) > 0 && rest[0] == os.PathSeparator {
		rest = rest[1:]
	}
	if rest == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i <= len(rest); i++ {
		if i == len(rest) || rest[i] == os.PathSeparator {
			if i > start {
				parts = append(parts, rest[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	switch a.state {
	case StateScanning:
		return components.RenderScanProgress(a.theme, a.scanProgress(), a.width, a.height)

	case StateHelp:
		return components.RenderHelp(a.theme, a.width, a.height)

	case StateConfirmDelete:
		return components.RenderConfirmDialog(a.theme, a.markedItems, a.width, a.height)

	case StateBrowsing, StateExporting, StateSearch:
		return a.renderBrowsing()
	}

	return ""
}

// scanProgress adapts the structural walk's atomic counters into the
// display shape RenderScanProgress expects. Byte totals stay at zero
// during this phase: the structural walk only stats files, it does not
// fold their sizes into a running directory total — that is the
// engine's job, and it starts only once the walk has finished.
func (a *App) scanProgress() scanner.Progress {
	return scanner.Progress{
		CurrentPath:  a.ScanPath,
		FilesScanned: a.buildCounters.Files.Load(),
		DirsScanned:  a.buildCounters.Dirs.Load(),
		Errors:       a.buildCounters.Errors.Load(),
		StartTime:    a.scanStart,
		Duration:     time.Since(a.scanStart),
	}
}

func (a *App) renderBrowsing() string {
	header := components.RenderHeader(a.theme, a.root, a.width)
	breadcrumb := components.RenderBreadcrumb(a.theme, a.currentDir, a.width)
	tabBar := components.RenderTabBar(a.theme, int(a.viewMode), a.sortConfig.Field, a.width)

	var content string
	switch a.viewMode {
	case ViewTree:
		tv := &components.TreeView{
			Theme:       a.theme,
			Layout:      a.layout,
			Items:       a.sortedItems,
			Cursor:      a.cursor,
			Offset:      a.offset,
			Marked:      a.marked,
			UseApparent: a.useApparent,
			ParentSize:  a.getParentSize(),
		}
		tv.EnsureVisible()
		a.offset = tv.Offset
		content = tv.Render()

	case ViewTreemap:
		content = components.RenderTreemap(a.theme, a.currentDir, a.useApparent, a.showHidden, a.layout.ContentWidth(), a.layout.ContentHeight())

	case ViewFileType:
		content = components.RenderFileTypes(a.theme, a.currentDir, a.useApparent, a.showHidden, a.layout.ContentWidth(), a.layout.ContentHeight())

	case ViewInspector:
		content = components.RenderInspector(a.theme, a.selectedItem(), a.layout.ContentWidth(), a.layout.ContentHeight())
	}

	errMsg := a.statusMsg
	if a.state == StateSearch {
		errMsg = "/" + a.searchQuery
	}

	statusInfo := components.StatusInfo{
		CurrentDir:  a.currentDir,
		MarkedCount: len(a.marked),
		UseApparent: a.useApparent,
		ShowHidden:  a.showHidden,
		SortField:   a.sortConfig.Field,
		ViewMode:    int(a.viewMode),
		ErrorMsg:    errMsg,
	}
	statusInfo.MarkedSize = a.markedSize(a.sortedItems)
	statusBar := components.RenderStatusBar(a.theme, statusInfo, a.width)

	return header + "\n" + breadcrumb + "\n" + tabBar + "\n" + content + "\n" + statusBar
}

func (a *App) moveCursor(delta int) {
	a.cursor += delta
	if a.cursor < 0 {
		a.cursor = 0
	}
	if a.cursor >= len(a.sortedItems) {
		a.cursor = len(a.sortedItems) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

// selectedItem returns the node under the cursor, or the current
// directory itself when nothing is selectable (an empty directory).
func (a *App) selectedItem() model.TreeNode {
	if a.cursor >= 0 && a.cursor < len(a.sortedItems) {
		return a.sortedItems[a.cursor]
	}
	return a.currentDir
}

func (a *App) enterDir() {
	if a.cursor >= len(a.sortedItems) {
		return
	}
	item := a.sortedItems[a.cursor]
	if dir, ok := item.(*model.DirNode); ok {
		a.navStack = append(a.navStack, a.currentDir)
		a.currentDir = dir
		a.cursor = 0
		a.offset = 0
		a.clearMarks()
		a.refreshSorted()
	}
}

func (a *App) goBack() {
	if len(a.navStack) == 0 {
		return
	}
	prev := a.navStack[len(a.navStack)-1]
	a.navStack = a.navStack[:len(a.navStack)-1]

	leavingName := a.currentDir.Name
	a.currentDir = prev
	a.clearMarks()
	a.refreshSorted()

	for i, item := range a.sortedItems {
		if item.GetName() == leavingName {
			a.cursor = i
			break
		}
	}
	a.offset = 0
}

func (a *App) toggleSort(field model.SortField) {
	if a.sortConfig.Field == field {
		if a.sortConfig.Order == model.SortDesc {
			a.sortConfig.Order = model.SortAsc
		} else {
			a.sortConfig.Order = model.SortDesc
		}
	} else {
		a.sortConfig.Field = field
		a.sortConfig.Order = model.SortDesc
	}
	a.refreshSorted()
}

func (a *App) toggleMark() {
	if a.cursor >= len(a.sortedItems) {
		return
	}
	p := a.sortedItems[a.cursor].Path()
	if a.marked[p] {
		delete(a.marked, p)
	} else {
		a.marked[p] = true
	}
	a.moveCursor(1)
}

func (a *App) clearMarks() {
	a.marked = make(map[string]bool)
}

func (a *App) refreshSorted() {
	if a.currentDir == nil {
		a.sortedItems = nil
		return
	}
	children := a.currentDir.GetChildren()

	if !a.showHidden {
		var filtered []model.TreeNode
		for _, c := range children {
			if len(c.GetName()) > 0 && c.GetName()[0] != '.' {
				filtered = append(filtered, c)
			}
		}
		children = filtered
	}

	model.SortChildren(children, a.sortConfig, a.useApparent)
	a.sortedItems = children
}

func (a *App) getParentSize() int64 {
	if a.currentDir == nil {
		return 0
	}
	if a.useApparent {
		return a.currentDir.GetSize()
	}
	return a.currentDir.GetUsage()
}

// buildCmd walks the scan target's structure in a background goroutine.
// It does not compute any directory's size: ScanDoneMsg's handler hands
// the result to the engine, which computes sizes asynchronously from
// there. Progress is visible through a.buildCounters, polled on every
// tickMsg while StateScanning.
func (a *App) buildCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		a.setBuildCancel(cancel)

		var rootDevice uint64
		if info, err := os.Stat(a.ScanPath); err == nil {
			rootDevice = engine.DeviceOf(info)
		}

		root, err := tree.Build(ctx, a.ScanPath, a.TreeOptions, &a.buildCounters)
		return ScanDoneMsg{Root: root, RootDevice: rootDevice, Err: err}
	}
}

func (a *App) importCmd() tea.Cmd {
	return func() tea.Msg {
		root, err := ops.ImportJSON(a.ImportPath)
		return ScanDoneMsg{Root: root, Err: err}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) prepareDelete() tea.Cmd {
	if a.imported {
		a.statusMsg = "Delete is disabled in import mode"
		return nil
	}
	if a.currentDir == nil {
		return nil
	}

	var items []components.ConfirmItem

	if len(a.marked) > 0 {
		for markedPath := range a.marked {
			for _, item := range a.sortedItems {
				if item.Path() == markedPath {
					items = append(items, components.ConfirmItem{
						Name:  item.GetName(),
						Path:  item.Path(),
						Size:  item.GetSize(),
						IsDir: item.IsDir(),
					})
				}
			}
		}
	} else if a.cursor < len(a.sortedItems) {
		item := a.sortedItems[a.cursor]
		items = append(items, components.ConfirmItem{
			Name:  item.GetName(),
			Path:  item.Path(),
			Size:  item.GetSize(),
			IsDir: item.IsDir(),
		})
	}

	if len(items) == 0 {
		return nil
	}

	a.markedItems = items
	a.state = StateConfirmDelete
	return nil
}

func (a *App) executeDelete() tea.Cmd {
	items := a.markedItems
	rootPath := a.root.Path()

	return func() tea.Msg {
		var deleted []string
		var errors []error

		for _, item := range items {
			err := ops.Delete(item.Path, rootPath)
			if err != nil {
				errors = append(errors, err)
			} else {
				deleted = append(deleted, item.Name)
			}
		}

		return DeleteDoneMsg{Deleted: deleted, Errors: errors}
	}
}

// FatalError returns a fatal scan/import error, if any.
func (a *App) FatalError() error { return a.fatalErr }

// ChosenDir returns the directory the user was browsing when they quit,
// for the caller to hand off to internal/shell. Empty before the first
// successful scan/import.
func (a *App) ChosenDir() string {
	if a.currentDir == nil {
		return ""
	}
	return a.currentDir.Path()
}

func (a *App) markedSize(items []model.TreeNode) int64 {
	var total int64
	for _, item := range items {
		if a.marked[item.Path()] {
			if a.useApparent {
				total += item.GetSize()
			} else {
				total += item.GetUsage()
			}
		}
	}
	return total
}

func (a *App) exportCmd() tea.Cmd {
	if a.root == nil {
		return nil
	}

	exportPath := a.ExportPath
	if exportPath == "" {
		exportPath = "dtree-export.json"
	}

	a.state = StateExporting
	root := a.root

	version := a.Version
	return func() tea.Msg {
		err := ops.ExportJSON(root, exportPath, version)
		return ExportDoneMsg{Path: exportPath, Err: err}
	}
}
