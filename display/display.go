// Package display renders a looper snapshot as styled text. Rendering is a
// pure function of its inputs.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ghost-looper/ghost"
	"ghost-looper/sequencer"
	"ghost-looper/theme"
	"ghost-looper/widgets"
)

// Label is the bracketed mode name shown in the header
func Label(ready bool, s sequencer.State) string {
	if !ready {
		return "[WAITING]"
	}
	switch s {
	case sequencer.Waiting:
		return "[WAITING]"
	case sequencer.Recording:
		return "[RECORDING]"
	case sequencer.TapTempo:
		return "[TAP TEMPO]"
	case sequencer.SyncPlaying:
		return "[SYNC PLAYING]"
	case sequencer.SyncMute:
		return "[SYNC MUTE]"
	default:
		return "[PLAYING]"
	}
}

// Cell picks the symbol for one step of a track
func Cell(t *sequencer.Track, step int, intensity float64, sym theme.Symbols) rune {
	switch {
	case t.Pattern[step]:
		return sym.Hit
	case t.Fill[step]:
		return sym.Fill
	case t.GhostAt(step, intensity):
		return sym.Ghost
	default:
		return sym.Empty
	}
}

// Render draws the header, one grid row per track (last track on top) and
// a footer. The highlighted column is the step that played last.
func Render(ready bool, st sequencer.Status, tracks []sequencer.Track, th *theme.Theme) string {
	sym := th.Symbols
	playhead := (st.CurrentStep - 1 + sequencer.TotalSteps) % sequencer.TotalSteps

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(th.Accent())
	if st.State == sequencer.Recording {
		labelStyle = labelStyle.Foreground(th.Active())
	}
	muted := lipgloss.NewStyle().Foreground(th.Muted())

	var out strings.Builder
	out.WriteString(labelStyle.Render(Label(ready, st.State)))
	out.WriteString(fmt.Sprintf("  %c=%d", sym.Tempo, st.BPM))
	out.WriteString(muted.Render(fmt.Sprintf("  swing %.2f  bar %d  clock %s", st.SwingRatio, st.GhostBarCounter, st.ClockSource)))
	out.WriteString("\n\n")

	nameWidth := 0
	for _, t := range tracks {
		nameWidth = max(nameWidth, len(t.Name))
	}

	for i := len(tracks) - 1; i >= 0; i-- {
		t := &tracks[i]
		marker := ' '
		nameStyle := lipgloss.NewStyle().Foreground(th.FG())
		if i == st.CurrentTrack {
			marker = sym.Selected
			nameStyle = lipgloss.NewStyle().Foreground(th.Cursor())
		}

		cells := make([]string, sequencer.TotalSteps)
		for step := range cells {
			r := Cell(t, step, st.Intensity, sym)
			cells[step] = widgets.RenderCell(r, cellColor(th, r), step == playhead)
		}

		out.WriteString(fmt.Sprintf("%c ", marker))
		out.WriteString(nameStyle.Render(fmt.Sprintf("%-*s", nameWidth, t.Name)))
		out.WriteString("  ")
		out.WriteString(widgets.RenderRow(cells, ghost.StepsPerBar/ghost.BeatsPerBar))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(widgets.RenderPad(th.RGB(theme.RoleSuccess), st.Indicator))
	out.WriteString(" ")
	legend := []string{
		widgets.RenderLegendItem(sym.Hit, cellColor(th, sym.Hit), "hit"),
		widgets.RenderLegendItem(sym.Fill, cellColor(th, sym.Fill), "fill"),
		widgets.RenderLegendItem(sym.Ghost, cellColor(th, sym.Ghost), "ghost"),
	}
	out.WriteString(strings.Join(legend, "  "))
	if !ready {
		out.WriteString(lipgloss.NewStyle().Foreground(th.Warning()).Render("  output not ready"))
	}
	return out.String()
}

func cellColor(th *theme.Theme, r rune) lipgloss.Color {
	switch r {
	case th.Symbols.Hit:
		return th.Active()
	case th.Symbols.Fill:
		return th.Warning()
	case th.Symbols.Ghost:
		return th.Accent()
	default:
		return th.Muted()
	}
}

// Plain returns one unstyled grid row per track, in track order
func Plain(st sequencer.Status, tracks []sequencer.Track) []string {
	sym := theme.New(nil).Symbols
	rows := make([]string, len(tracks))
	for i := range tracks {
		var b strings.Builder
		for step := 0; step < sequencer.TotalSteps; step++ {
			b.WriteRune(Cell(&tracks[i], step, st.Intensity, sym))
		}
		rows[i] = b.String()
	}
	return rows
}
