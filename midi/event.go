package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0

	// single-byte realtime messages
	TimingClock uint8 = 0xF8
	Start       uint8 = 0xFA
	Continue    uint8 = 0xFB
	Stop        uint8 = 0xFC
)

// Event is a decoded inbound message
type Event struct {
	Type     uint8 // NoteOn, NoteOff, CC or a realtime type
	Channel  uint8
	Note     uint8 // controller number for CC
	Velocity uint8 // value for CC
}

// Realtime reports whether the event is a one-byte transport message
func (e Event) Realtime() bool {
	return e.Type >= TimingClock
}

// Decode classifies a message. Note-on with velocity 0 decodes as NoteOff.
func Decode(msg gomidi.Message) (Event, bool) {
	raw := []byte(msg)
	if len(raw) == 1 {
		switch raw[0] {
		case TimingClock, Start, Continue, Stop:
			return Event{Type: raw[0]}, true
		}
		return Event{}, false
	}

	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Type: NoteOn, Channel: ch, Note: key, Velocity: vel}, true
	case msg.GetNoteEnd(&ch, &key):
		return Event{Type: NoteOff, Channel: ch, Note: key}, true
	case msg.GetControlChange(&ch, &key, &vel):
		return Event{Type: CC, Channel: ch, Note: key, Velocity: vel}, true
	}
	return Event{}, false
}
