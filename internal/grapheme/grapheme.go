// Package grapheme splits text into grapheme clusters and measures them in
// terminal cells. Columns everywhere in modalsync count clusters, so a
// combining sequence or an emoji family is one column.
package grapheme

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// Split returns grapheme clusters for text in visual order.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	g := uniseg.NewGraphemes(text)
	out := make([]string, 0, len(text))
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// Count returns the number of grapheme clusters in text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	return uniseg.GraphemeClusterCount(text)
}

// Width returns the cells cluster occupies when it starts at cell col. Tabs
// advance to the next multiple of tabWidth.
func Width(cluster string, col, tabWidth int) int {
	if cluster == "\t" {
		if tabWidth <= 0 {
			tabWidth = 4
		}
		return tabWidth - col%tabWidth
	}
	w := runewidth.StringWidth(cluster)
	if w <= 0 {
		w = max(uniseg.StringWidth(cluster), 0)
	}
	return w
}

// CellOffset returns the cell at which grapheme column gcol of line starts.
// Columns past the end of the line count as one cell each.
func CellOffset(line string, gcol, tabWidth int) int {
	cell := 0
	clusters := Split(line)
	for i := 0; i < gcol; i++ {
		if i < len(clusters) {
			cell += Width(clusters[i], cell, tabWidth)
		} else {
			cell++
		}
	}
	return cell
}

// Fit renders line into at most width cells, expanding tabs to spaces. A
// wide cluster that would straddle the edge is dropped.
func Fit(line string, width, tabWidth int) string {
	if width <= 0 {
		return ""
	}
	var sb strings.Builder
	cell := 0
	for _, c := range Split(line) {
		w := Width(c, cell, tabWidth)
		if cell+w > width {
			break
		}
		if c == "\t" {
			sb.WriteString(strings.Repeat(" ", w))
		} else {
			sb.WriteString(c)
		}
		cell += w
	}
	return sb.String()
}
