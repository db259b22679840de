package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const maxColumnWidth = 40

// renderTable lays out header and rows in aligned columns, keeping the
// cursor row visible within height lines.
func renderTable(header []string, rows []Row, cursor, width, height int) string {
	if len(rows) == 0 {
		return dimStyle.Render("Nothing to show")
	}

	cols := len(header)
	for _, r := range rows {
		cols = max(cols, len(r.Cells))
	}
	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], min(lipgloss.Width(c), maxColumnWidth))
		}
	}
	measure(header)
	for _, r := range rows {
		measure(r.Cells)
	}

	line := func(cells []string) string {
		parts := make([]string, cols)
		for i := range parts {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = pad(truncate(cell, widths[i]), widths[i])
		}
		return truncate(strings.Join(parts, "  "), width)
	}

	bodyHeight := max(1, height-1)
	first := 0
	if cursor >= bodyHeight {
		first = cursor - bodyHeight + 1
	}
	last := min(len(rows), first+bodyHeight)

	out := []string{headerStyle.Render(line(header))}
	for i := first; i < last; i++ {
		text := line(rows[i].Cells)
		if i == cursor {
			out = append(out, selectedStyle.Render(pad(text, width)))
			continue
		}
		out = append(out, text)
	}
	return strings.Join(out, "\n")
}

// truncate shortens s to at most w cells, marking the cut with "…".
func truncate(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= w {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > w {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

func pad(s string, w int) string {
	if n := w - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// wrapText hard-wraps every line of s to width cells.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
