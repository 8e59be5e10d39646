package util

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/width"
)

// FormatSize returns a human-readable binary size string (KiB/MiB/...).
// go-humanize's IBytes already produces the "%.1f KiB"-style output this
// package's callers and tests expect.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatCount returns a human-readable count string.
func FormatCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1_000_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
}

// Percent returns the percentage of part relative to total.
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// TruncateString truncates s to at most maxLen terminal display columns,
// treating East Asian wide/fullwidth runes as two columns each, and
// appending "..." when truncation actually happens. When maxLen is 3 or
// less, it instead returns the first maxLen runes with no "...", whatever
// their width, so wide runes can then take up to 2*maxLen columns.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if DisplayWidth(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		if maxLen > len(runes) {
			maxLen = len(runes)
		}
		return string(runes[:maxLen])
	}

	budget := maxLen - 3
	var out []rune
	col := 0
	for _, r := range s {
		w := runeWidth(r)
		if col+w > budget {
			break
		}
		out = append(out, r)
		col += w
	}
	return string(out) + "..."
}

// DisplayWidth returns the terminal column width of s, counting East
// Asian wide/fullwidth runes as two columns each.
func DisplayWidth(s string) int {
	total := 0
	for _, r := range s {
		total += runeWidth(r)
	}
	return total
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}
