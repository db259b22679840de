package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/mailnav/internal/location"
)

// chromeHeight is the number of lines around the body: address bar, title,
// notice and status line.
const chromeHeight = 4

func (b *BrowserPage) bodyHeight() int {
	h := b.height - chromeHeight
	if b.content.Summary != "" {
		h--
	}
	return max(1, h)
}

// View renders the browser.
func (b *BrowserPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing..."
	}
	if width != b.width || height != b.height {
		b.resize(width, height)
	}

	parts := []string{b.renderAddressBar(), b.renderTitle()}
	if b.content.Summary != "" {
		parts = append(parts, dimStyle.Render(truncate(b.content.Summary, width)))
	}
	body := lipgloss.NewStyle().Width(width).Height(b.bodyHeight()).MaxHeight(b.bodyHeight()).
		Render(b.renderBody(width, b.bodyHeight()))
	parts = append(parts, body, b.renderNotice(), b.renderStatusLine())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (b *BrowserPage) renderAddressBar() string {
	brand := renderBranding()
	var addr string
	if b.editing {
		addr = b.input.View()
	} else {
		addr = "#" + strings.TrimPrefix(b.cfg.Bar.Fragment(), location.FragmentMarker)
	}
	line := brand + barStyle.Render("  "+addr)
	if w := lipgloss.Width(line); w < b.width {
		line += barStyle.Render(strings.Repeat(" ", b.width-w))
	}
	return line
}

func (b *BrowserPage) renderTitle() string {
	title := b.content.Title
	if title == "" {
		title = "mailnav"
	}
	out := titleStyle.Render(title)
	if pg := b.content.Pagination; pg != nil {
		out += dimStyle.Render(fmt.Sprintf("  page %d/%d · %d items", pg.Page, pg.Pages, pg.Total))
	}
	return out
}

func (b *BrowserPage) renderBody(width, height int) string {
	if b.showHelp {
		return renderHelp(b.keys)
	}
	c := b.content
	switch {
	case c.Callback == "":
		return renderWaiting(b.cfg.Bar.Fragment(), b.now(), width, height)
	case c.Callback == CallbackStats:
		chartHeight := min(10, max(4, height/2))
		chart := renderTrafficChart(c.Series, width, chartHeight)
		table := renderTable(c.Header, c.Rows, -1, width, height-chartHeight-1)
		return lipgloss.JoinVertical(lipgloss.Left, chart, "", table)
	case c.Body != "":
		return b.vp.View()
	default:
		return renderTable(c.Header, c.Rows, b.cursor, width, height)
	}
}

func (b *BrowserPage) renderNotice() string {
	if b.notice == "" || b.now().Sub(b.noticeAt) > noticeTTL {
		return ""
	}
	if b.noticeErr {
		return errorStyle.Render("✗ " + b.notice)
	}
	return noticeStyle.Render("✓ " + b.notice)
}

// renderStatusLine renders the key hints, trimmed to the terminal width.
func (b *BrowserPage) renderStatusLine() string {
	w := b.width
	veryNarrow := w < 60
	narrow := w < 100

	var status string
	switch {
	case b.editing:
		status = "Enter: Go • ESC: Cancel"
	case b.showHelp:
		status = "?/ESC: Close help"
	case veryNarrow:
		status = "1-5 • n/p • b • / • ? • q"
	case narrow:
		status = "1-5: Modules • n/p: Page • Enter: Open • b: Back • /: Edit • q: Quit"
	default:
		status = "1-5: Modules • ↑↓: Select • Enter: Open • n/p: Page • r: Reload • b: Back • /: Edit location • x/d: Release/Delete • ?: Help • q: Quit"
	}

	line := truncate(" "+status, w)
	return barStyle.Render(pad(line, w))
}

func renderHelp(km KeyMap) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys") + "\n\n")
	bindings := append([]keyHelp{}, helpFor(
		km.Up, km.Down, km.Enter, km.Escape, km.NextPage, km.PrevPage,
		km.Refresh, km.Back, km.EditBar, km.PageUp, km.PageDown,
		km.Release, km.Delete, km.Period, km.Help, km.Quit,
	)...)
	bindings = append(bindings, helpFor(km.Modules...)...)
	for _, h := range bindings {
		fmt.Fprintf(&b, "  %-10s %s\n", h.key, h.desc)
	}
	return b.String()
}

var waitFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// renderWaiting is shown until the first response lands. The frame follows
// the clock so each redraw advances it.
func renderWaiting(fragment string, now time.Time, width, height int) string {
	frame := string(waitFrames[now.UnixMilli()/120%int64(len(waitFrames))])
	target := strings.TrimPrefix(fragment, location.FragmentMarker)
	if target == "" {
		target = "default page"
	}
	text := dimStyle.Italic(true).Render(frame + " fetching " + target)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}
