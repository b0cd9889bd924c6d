package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderPad renders a single colored pad, used for the status indicator
func RenderPad(color [3]uint8, lit bool) string {
	glyph := "□"
	if lit {
		glyph = "■"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(color))).Render(glyph)
}

// RenderCell renders one step symbol. The playhead cell is drawn reversed.
func RenderCell(symbol rune, fg lipgloss.Color, playhead bool) string {
	style := lipgloss.NewStyle().Foreground(fg)
	if playhead {
		style = style.Reverse(true)
	}
	return style.Render(string(symbol))
}

// RenderRow joins rendered cells, with a gap after every group cells
func RenderRow(cells []string, group int) string {
	var out strings.Builder
	for i, c := range cells {
		if i > 0 && group > 0 && i%group == 0 {
			out.WriteString(" ")
		}
		out.WriteString(c)
	}
	return out.String()
}

// RenderLegendItem renders a single legend item: "* name"
func RenderLegendItem(symbol rune, fg lipgloss.Color, name string) string {
	return fmt.Sprintf("%s %s", RenderCell(symbol, fg, false), name)
}

func rgbToHex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
