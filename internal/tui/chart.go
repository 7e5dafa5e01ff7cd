package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
)

// chartBar is one bar of a totals chart.
type chartBar struct {
	label string
	value int64
	color lipgloss.Color
}

const legendWidth = 22

// renderBarChart draws bars side by side with a legend of their values on
// the right.
func renderBarChart(bars []chartBar, width, height int) string {
	if len(bars) == 0 || height < 2 {
		return ""
	}
	chartWidth := max(width-legendWidth-2, len(bars)*2)
	barWidth := max(1, min(6, (chartWidth-len(bars))/len(bars)))

	bc := barchart.New(chartWidth, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, b := range bars {
		style := lipgloss.NewStyle().Foreground(b.color).Background(b.color)
		bc.Push(barchart.BarData{
			Label: b.label,
			Values: []barchart.BarValue{
				{Name: b.label, Value: float64(b.value), Style: style},
			},
		})
	}
	bc.Draw()

	legendLines := make([]string, 0, height)
	for _, b := range bars {
		label := fmt.Sprintf("%-11s", b.label+":")
		value := fmt.Sprintf("%9d", b.value)
		legendLines = append(legendLines, lipgloss.NewStyle().Foreground(b.color).Render("■ "+label+value))
	}
	for len(legendLines) < height {
		legendLines = append(legendLines, "")
	}

	chartLines := strings.Split(bc.View(), "\n")
	for len(chartLines) < height {
		chartLines = append(chartLines, "")
	}

	lines := make([]string, height)
	for i := range height {
		left := lipgloss.NewStyle().Width(chartWidth).Render(chartLines[i])
		lines[i] = left + "  " + legendLines[i]
	}
	return strings.Join(lines, "\n")
}
