package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/mailnav/internal/model"
)

var trafficColors = []struct {
	name  string
	color string
}{
	{"Received", "39"},
	{"Sent", "#49E209"},
	{"Spam", "208"},
}

// renderTrafficChart draws one stacked bar per day with a totals legend on
// the right.
func renderTrafficChart(series []model.TrafficPoint, width, chartHeight int) string {
	if len(series) == 0 {
		return dimStyle.Render("No traffic recorded for this period")
	}
	if chartHeight < 4 {
		chartHeight = 4
	}

	legendWidth := 18
	chartWidth := width - legendWidth - 2
	if chartWidth < 20 {
		chartWidth = 20
	}
	barWidth := 1
	if per := chartWidth/len(series) - 1; per > 1 {
		barWidth = min(per, 4)
	}

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)

	styles := make(map[string]lipgloss.Style, len(trafficColors))
	for _, tc := range trafficColors {
		c := lipgloss.Color(tc.color)
		styles[tc.name] = lipgloss.NewStyle().Foreground(c).Background(c)
	}

	maxBars := chartWidth / (barWidth + 1)
	start := 0
	if len(series) > maxBars {
		start = len(series) - maxBars
	}

	var sent, received, spam int64
	for _, p := range series[start:] {
		sent += p.Sent
		received += p.Received
		spam += p.Spam

		values := []barchart.BarValue{
			{Name: "Received", Value: float64(p.Received), Style: styles["Received"]},
			{Name: "Sent", Value: float64(p.Sent), Style: styles["Sent"]},
			{Name: "Spam", Value: float64(p.Spam), Style: styles["Spam"]},
		}
		bc.Push(barchart.BarData{Label: "", Values: values})
	}
	bc.Draw()

	totals := map[string]int64{"Received": received, "Sent": sent, "Spam": spam}
	var legendLines []string
	for _, tc := range trafficColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(tc.color))
		legendLines = append(legendLines, style.Render(fmt.Sprintf("%-9s%7d", tc.name+":", totals[tc.name])))
	}
	legendLines = append(legendLines, dimStyle.Render(fmt.Sprintf("%-9s%7d", "Days:", len(series)-start)))

	chartLines := strings.Split(bc.View(), "\n")
	for len(chartLines) < chartHeight {
		chartLines = append(chartLines, "")
	}

	combined := make([]string, 0, chartHeight)
	for i := 0; i < chartHeight; i++ {
		line := chartLines[i]
		if w := lipgloss.Width(line); w < chartWidth {
			line += strings.Repeat(" ", chartWidth-w)
		}
		legend := ""
		if i < len(legendLines) {
			legend = legendLines[i]
		}
		combined = append(combined, line+"  "+legend)
	}
	return strings.Join(combined, "\n")
}
