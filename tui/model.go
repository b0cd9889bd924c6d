package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ghost-looper/button"
	"ghost-looper/display"
	"ghost-looper/midi"
	"ghost-looper/sequencer"
	"ghost-looper/tempo"
	"ghost-looper/theme"
)

// Injector accepts synthesized button events
type Injector interface {
	Inject(ev button.Event) bool
}

// Frame is one rendered looper state
type Frame struct {
	Ready  bool
	Status sequencer.Status
	Tracks []sequencer.Track
}

type UpdateMsg Frame

type DeviceEventMsg midi.DeviceEvent

// Updates is a sequencer.Renderer that hands frames to the TUI. Only the
// newest frame is kept; Render never blocks the tick.
type Updates struct {
	ch chan Frame
}

func NewUpdates() *Updates {
	return &Updates{ch: make(chan Frame, 1)}
}

func (u *Updates) Render(ready bool, st sequencer.Status, tracks []sequencer.Track) {
	f := Frame{Ready: ready, Status: st, Tracks: tracks}
	for {
		select {
		case u.ch <- f:
			return
		default:
		}
		// replace the stale frame
		select {
		case <-u.ch:
		default:
		}
	}
}

// C is the frame channel
func (u *Updates) C() <-chan Frame {
	return u.ch
}

type keyMap struct {
	Tap      key.Binding
	Next     key.Binding
	TapTempo key.Binding
	Clear    key.Binding
	Quit     key.Binding
}

func Key(help string, keyboardKey ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keyboardKey...), key.WithHelp(keyboardKey[0], help))
}

var keys = keyMap{
	Tap:      Key("tap", "space", " "),
	Next:     Key("next track", "n"),
	TapTempo: Key("tap tempo", "t"),
	Clear:    Key("clear", "x"),
	Quit:     Key("quit", "q", "ctrl+c"),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tap, k.Next, k.TapTempo, k.Clear, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// gestures maps a key to the event sequence a real button would produce
var gestures = map[string][]button.Event{
	"space": {button.Down, button.ShortPressRelease},
	" ":     {button.Down, button.ShortPressRelease},
	"n":     {button.Down, button.LongPressBegin, button.LongPressRelease},
	"t":     {button.Down, button.LongPressBegin, button.LongHoldRelease},
	"x":     {button.Down, button.LongPressBegin, button.VeryLongHoldRelease},
}

type Model struct {
	Updates  *Updates
	Devices  *midi.DeviceManager
	Button   Injector
	Theme    *theme.Theme
	frame    Frame
	help     help.Model
	ports    map[string]string // id -> kind
	quitting bool
}

// NewModel creates the TUI. devices may be nil.
func NewModel(updates *Updates, devices *midi.DeviceManager, btn Injector, th *theme.Theme) Model {
	return Model{
		Updates: updates,
		Devices: devices,
		Button:  btn,
		Theme:   th,
		frame:   Frame{Tracks: sequencer.DefaultTracks(), Status: sequencer.Status{BPM: tempo.DefaultBPM}},
		help:    help.New(),
		ports:   make(map[string]string),
	}
}

func ListenForUpdates(u *Updates) tea.Cmd {
	return func() tea.Msg {
		return UpdateMsg(<-u.C())
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	if m.Devices == nil {
		return ListenForUpdates(m.Updates)
	}
	return tea.Batch(
		ListenForUpdates(m.Updates),
		ListenForDevices(m.Devices),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if seq, ok := gestures[msg.String()]; ok {
			for _, ev := range seq {
				m.Button.Inject(ev)
			}
		}

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case UpdateMsg:
		m.frame = Frame(msg)
		return m, ListenForUpdates(m.Updates)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		if event.Type == midi.DeviceConnected {
			m.ports[event.ID] = event.Kind
		} else {
			delete(m.ports, event.ID)
		}
		return m, ListenForDevices(m.Devices)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render("ghost-looper"))
	out.WriteString("\n\n")
	out.WriteString(display.Render(m.frame.Ready, m.frame.Status, m.frame.Tracks, m.Theme))
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(m.deviceLine()))
	out.WriteString("\n")
	out.WriteString(m.help.View(keys))
	return out.String()
}

func (m Model) deviceLine() string {
	if len(m.ports) == 0 {
		return "no devices"
	}
	ids := make([]string, 0, len(m.ports))
	for id := range m.ports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s:%s", m.ports[id], id)
	}
	return strings.Join(parts, "  ")
}
