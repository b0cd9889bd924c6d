package midi

import "time"

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	default:
		return "unknown"
	}
}

// LevelSink receives the raw looper button level
type LevelSink interface {
	SetLevel(down bool)
}

// ClockSink receives external clock pulses and transport starts
type ClockSink interface {
	Pulse(now time.Time)
	TransportStart()
}

// Controller is a MIDI device acting as the looper button
type Controller interface {
	ID() string
	Type() ControllerType

	// SetIndicator mirrors the status LED, where the device has one
	SetIndicator(on bool) error

	Close() error
}

// Launchpad X color palette (velocity values 0-127)
const (
	ColorOff         uint8 = 0
	ColorRed         uint8 = 5
	ColorGreen       uint8 = 21
	ColorBrightGreen uint8 = 87
	ColorOrange      uint8 = 9
	ColorWhite       uint8 = 3

	// Channel modes for LED messages
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)
