package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every page.
var (
	ColorNavy  = lipgloss.Color("#1B2B48")
	ColorWhite = lipgloss.Color("#FFFFFF")
	ColorGray  = lipgloss.Color("245")
	ColorBlue  = lipgloss.Color("39")
	ColorGreen = lipgloss.Color("#49E209")
	ColorRed   = lipgloss.Color("#FF4444")
	ColorAmber = lipgloss.Color("208")
)

var (
	barStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite)

	titleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Background(ColorBlue).
			Foreground(ColorWhite)

	noticeStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	errorStyle  = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorGray)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)
)

// renderBranding renders the product name with a green to blue gradient.
func renderBranding() string {
	colors := []string{"#49E209", "#35DD2F", "#21D955", "#0DD47B", "#00D0A1", "#00CAC7", "#00B5E2"}
	var out string
	for i, ch := range "mailnav" {
		out += lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(lipgloss.Color(colors[i%len(colors)])).
			Bold(true).
			Render(string(ch))
	}
	return out
}
