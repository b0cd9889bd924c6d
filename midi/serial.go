package midi

import (
	"io"
	"sync"

	"ghost-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
)

// DINBaud is the MIDI 1.0 DIN current loop rate
const DINBaud = 31250

// SerialOutput writes raw MIDI bytes to a serial device (a DIN MIDI
// interface or a microcontroller bridge).
type SerialOutput struct {
	device string
	baud   int

	mu   sync.Mutex
	port io.WriteCloser
}

// NewSerialOutput creates a closed output; Reconnect opens it
func NewSerialOutput(device string, baud int) *SerialOutput {
	if baud <= 0 {
		baud = DINBaud
	}
	return &SerialOutput{device: device, baud: baud}
}

// SerialPorts lists the serial devices present on the system
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Device is the configured device path
func (s *SerialOutput) Device() string {
	return s.device
}

// Reconnect opens the device if it is not open
func (s *SerialOutput) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil || s.device == "" {
		return nil
	}
	p, err := serial.Open(s.device, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return err
	}
	s.port = p
	debug.Log("serial", "opened %s at %d baud", s.device, s.baud)
	return nil
}

func (s *SerialOutput) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// SendNote writes note-on then note-off. A write error closes the port
// until the next Reconnect.
func (s *SerialOutput) SendNote(channel, note, velocity uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return
	}
	if _, err := s.port.Write(EncodeNote(channel, note, velocity)); err != nil {
		debug.Log("serial", "write %s: %v", s.device, err)
		s.port.Close()
		s.port = nil
	}
}

// Close closes the device
func (s *SerialOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// EncodeNote returns the wire bytes of a zero-length note
func EncodeNote(channel, note, velocity uint8) []byte {
	on := []byte(gomidi.NoteOn(channel, note, velocity))
	off := []byte(gomidi.NoteOff(channel, note))
	return append(append(make([]byte, 0, len(on)+len(off)), on...), off...)
}
