// Package search builds a filename substring index over an engine.TreeSnapshot
// so the browser can jump the cursor to the next matching entry without
// re-walking the tree on every keystroke.
package search

import (
	"strings"

	"github.com/arlowe/dtree/internal/engine"
)

// entry is one indexed node: its original path alongside a lowercased
// base name, precomputed once so queries never re-lowercase.
type entry struct {
	path      string
	lowerName string
}

// Index answers substring queries against the base names of the nodes of
// a single engine.TreeSnapshot. It is rebuilt wholesale whenever the tree changes;
// there is no incremental update because a full rebuild over the node
// counts a terminal can display is cheap.
type Index struct {
	entries []entry
}

// Build constructs an Index over every node in snapshot.
func Build(snapshot engine.TreeSnapshot) *Index {
	idx := &Index{entries: make([]entry, 0, len(snapshot.Nodes))}
	for _, n := range snapshot.Nodes {
		idx.entries = append(idx.entries, entry{
			path:      n.Path,
			lowerName: strings.ToLower(baseName(n.Path)),
		})
	}
	return idx
}

// Find returns the paths of every node whose base name contains query
// (case-insensitive), in snapshot order.
func (idx *Index) Find(query string) []string {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)
	var matches []string
	for _, e := range idx.entries {
		if strings.Contains(e.lowerName, q) {
			matches = append(matches, e.path)
		}
	}
	return matches
}

// Next returns the first match strictly after afterPath, wrapping
// around to the first match overall if afterPath is the last one (or
// not among the matches at all). It returns "", false when matches is
// empty.
func Next(matches []string, afterPath string) (string, bool) {
	if len(matches) == 0 {
		return "", false
	}
	for i, p := range matches {
		if p == afterPath {
			return matches[(i+1)%len(matches)], true
		}
	}
	return matches[0], true
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}
