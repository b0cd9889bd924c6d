package midi

import (
	"fmt"
	"time"

	"ghost-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// AnyNote makes every note on a button input act as the button
const AnyNote = -1

// Route decides what an input port's messages drive. Nil sinks are skipped.
type Route struct {
	Clock      ClockSink
	Button     LevelSink
	ButtonNote int
	Now        func() time.Time
}

// Handle dispatches one decoded event
func (r Route) Handle(ev Event) {
	switch ev.Type {
	case TimingClock:
		if r.Clock != nil {
			now := time.Now
			if r.Now != nil {
				now = r.Now
			}
			r.Clock.Pulse(now())
		}
	case Start:
		if r.Clock != nil {
			r.Clock.TransportStart()
		}
	case NoteOn, NoteOff:
		if r.Button == nil {
			return
		}
		if r.ButtonNote != AnyNote && int(ev.Note) != r.ButtonNote {
			return
		}
		r.Button.SetLevel(ev.Type == NoteOn)
	}
}

// Input is a listening MIDI input port
type Input struct {
	id   string
	stop func()
}

// OpenInput starts listening on in. Timing clock delivery must be asked
// for explicitly.
func OpenInput(id string, in drivers.In, route Route) (*Input, error) {
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		if ev, ok := Decode(msg); ok {
			route.Handle(ev)
		}
	}, gomidi.UseTimeCode(), gomidi.HandleError(func(err error) {
		debug.Log("midi", "input %s: %v", id, err)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", id, err)
	}
	debug.Log("midi", "input %s open", id)
	return &Input{id: id, stop: stop}, nil
}

func (i *Input) ID() string {
	return i.id
}

func (i *Input) Close() error {
	if i.stop != nil {
		i.stop()
	}
	return nil
}
