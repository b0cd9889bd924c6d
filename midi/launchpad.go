package midi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ghost-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var ledSendCount uint64

// Pad addresses one Launchpad pad. Row 0 is the bottom row, col 8 the
// scene buttons on the right.
type Pad struct {
	Row, Col int
}

// LaunchpadController uses one pad of a Novation Launchpad X as the looper
// button and lights it with the status indicator.
type LaunchpadController struct {
	id      string
	pad     Pad
	onColor uint8
	sink    LevelSink

	send     func(msg gomidi.Message) error
	stopFunc func()

	mu  sync.Mutex
	lit bool
	set bool // LED state known
}

// NewLaunchpadController switches the device to programmer mode and starts
// listening for the pad
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out, pad Pad, rgb [3]uint8, sink LevelSink) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		id:      id,
		pad:     pad,
		onColor: mapRGBToLaunchpad(rgb),
		sink:    sink,
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		lp.send = send

		// Programmer mode: F0 00 20 29 02 0C 00 7F F7
		lp.send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}))
		// Full brightness: F0 00 20 29 02 0C 08 <brightness> F7
		lp.send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}))
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, _ int32) {
			ev, ok := Decode(msg)
			if !ok {
				return
			}
			switch ev.Type {
			case NoteOn, NoteOff:
				if row, col := noteToRowCol(ev.Note); row == pad.Row && col == pad.Col {
					lp.sink.SetLevel(ev.Type == NoteOn)
				}
			case CC:
				// top row buttons send CC 91-98
				if row, col := ccToRowCol(ev.Note); row == pad.Row && col == pad.Col {
					lp.sink.SetLevel(ev.Velocity > 0)
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

// SetIndicator lights or clears the pad. Unchanged states are not resent.
func (lp *LaunchpadController) SetIndicator(on bool) error {
	if lp.send == nil {
		return nil
	}
	lp.mu.Lock()
	if lp.set && lp.lit == on {
		lp.mu.Unlock()
		return nil
	}
	lp.lit, lp.set = on, true
	lp.mu.Unlock()

	color := ColorOff
	if on {
		color = lp.onColor
	}
	count := atomic.AddUint64(&ledSendCount, 1)
	debug.LogEvery(100, "lp-send", "led count=%d", count)
	return lp.send(gomidi.NoteOn(ChannelStatic, rowColToNote(lp.pad.Row, lp.pad.Col), color))
}

// mapRGBToLaunchpad finds the nearest Launchpad X palette color for an RGB value
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	// Format: {velocity, R, G, B}
	palette := [][4]uint8{
		{0, 0, 0, 0},         // off
		{5, 255, 0, 0},       // red
		{9, 255, 100, 0},     // orange
		{13, 255, 200, 0},    // yellow
		{21, 0, 255, 0},      // bright green
		{37, 0, 200, 200},    // cyan
		{45, 0, 100, 255},    // blue
		{49, 150, 0, 200},    // purple
		{53, 255, 80, 180},   // pink
		{84, 255, 150, 50},   // bright orange
		{87, 150, 255, 100},  // lime
		{119, 255, 255, 255}, // white
	}

	bestMatch := uint8(0)
	bestDist := 1 << 30

	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])
	for _, p := range palette {
		pr, pg, pb := int(p[1]), int(p[2]), int(p[3])
		dist := (r-pr)*(r-pr) + (g-pg)*(g-pg) + (b-pb)*(b-pb)
		if dist < bestDist {
			bestDist = dist
			bestMatch = p[0]
		}
	}
	return bestMatch
}

func (lp *LaunchpadController) Close() error {
	if lp.send != nil {
		lp.send(gomidi.NoteOn(ChannelStatic, rowColToNote(lp.pad.Row, lp.pad.Col), ColorOff))
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	return nil
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, ..., 89
// Top row:   Row 8 = CC 91-98 on input, notes 91-98 for LEDs

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}

func isLaunchpad(name string) bool {
	return MatchPort("launchpad", name) && MatchPort("midi", name)
}
