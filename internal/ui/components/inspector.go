package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/arlowe/dtree/internal/model"
	"github.com/arlowe/dtree/internal/ui/style"
	"github.com/arlowe/dtree/internal/util"
)

// PreviewRenderer renders a content preview for the selected node. The
// corpus this module draws its stack from has no image-decoding
// dependency, so image preview stays behind this interface rather than a
// hand-rolled stdlib decoder.
type PreviewRenderer interface {
	Render(node model.TreeNode) string
}

// unsupportedPreview is the only PreviewRenderer implementation: a
// placeholder for content kinds dtree does not render inline.
type unsupportedPreview struct{}

func (unsupportedPreview) Render(node model.TreeNode) string {
	if node.IsDir() {
		return "(directory — no preview)"
	}
	return "(preview not supported for this file type)"
}

// DefaultPreviewRenderer is the PreviewRenderer RenderInspector uses when
// none is supplied. Swappable in tests.
var DefaultPreviewRenderer PreviewRenderer = unsupportedPreview{}

// RenderInspector renders the metadata pane for the node under the cursor:
// size, disk usage, modification time, inode, and the flags carried over
// from the scan (symlink, read error, hardlink sharing, estimated usage).
func RenderInspector(theme style.Theme, node model.TreeNode, width, height int) string {
	if node == nil {
		return lipgloss.NewStyle().Foreground(theme.TextMuted).Render("  (nothing selected)")
	}

	labelStyle := lipgloss.NewStyle().Foreground(theme.TextMuted).Width(14)
	valueStyle := lipgloss.NewStyle().Foreground(theme.TextPrimary)
	row := func(label, value string) string {
		return "  " + labelStyle.Render(label) + valueStyle.Render(value)
	}

	var lines []string
	lines = append(lines, row("Name", node.GetName()))
	lines = append(lines, row("Path", node.Path()))

	kind := "file"
	if node.IsDir() {
		kind = "directory"
	}
	lines = append(lines, row("Type", kind))
	lines = append(lines, row("Apparent size", util.FormatSize(node.GetSize())))
	lines = append(lines, row("Disk usage", util.FormatSize(node.GetUsage())))
	lines = append(lines, row("Modified", node.GetMtime().Format("2006-01-02 15:04:05")))

	if fn, ok := node.(*model.FileNode); ok && fn.Inode != 0 {
		lines = append(lines, row("Inode", fmt.Sprintf("%d", fn.Inode)))
	}

	flag := node.GetFlag()
	var flags []string
	if flag&model.FlagSymlink != 0 {
		flags = append(flags, "symlink")
	}
	if flag&model.FlagHardlink != 0 {
		flags = append(flags, "shared (hardlinked)")
	}
	if flag&model.FlagError != 0 {
		flags = append(flags, "read error")
	}
	if flag&model.FlagUsageEstimated != 0 {
		flags = append(flags, "usage estimated")
	}
	if len(flags) > 0 {
		lines = append(lines, row("Flags", strings.Join(flags, ", ")))
	}

	lines = append(lines, "")
	lines = append(lines, row("Preview", DefaultPreviewRenderer.Render(node)))

	for len(lines) < height {
		lines = append(lines, "")
	}

	bgStyle := lipgloss.NewStyle().Background(theme.BgDark).Width(width)
	for i := range lines[:min(len(lines), height)] {
		lines[i] = bgStyle.Render(lines[i])
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}
