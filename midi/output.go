package midi

import (
	"strings"
	"sync"

	"ghost-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Output is a note transport
type Output interface {
	Ready() bool
	SendNote(channel, note, velocity uint8)
}

// Outputs fans notes out to every ready transport. It is ready when any
// member is.
type Outputs []Output

func (o Outputs) Ready() bool {
	for _, out := range o {
		if out.Ready() {
			return true
		}
	}
	return false
}

func (o Outputs) SendNote(channel, note, velocity uint8) {
	for _, out := range o {
		if out.Ready() {
			out.SendNote(channel, note, velocity)
		}
	}
}

// PortOutput sends to a system MIDI port picked by name. The device
// manager attaches and detaches the port as it comes and goes.
type PortOutput struct {
	name string

	mu     sync.RWMutex
	port   string
	sender func(gomidi.Message) error
}

// NewPortOutput creates an output for the first port whose name contains
// name (case-insensitive)
func NewPortOutput(name string) *PortOutput {
	return &PortOutput{name: name}
}

// Ready reports whether a port is attached
func (p *PortOutput) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender != nil
}

// PortName is the attached port, empty when detached
func (p *PortOutput) PortName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port
}

// SendNote sends a zero-length note: note-on then note-off
func (p *PortOutput) SendNote(channel, note, velocity uint8) {
	p.mu.RLock()
	send := p.sender
	p.mu.RUnlock()
	if send == nil {
		return
	}
	for _, msg := range []gomidi.Message{gomidi.NoteOn(channel, note, velocity), gomidi.NoteOff(channel, note)} {
		if err := send(msg); err != nil {
			debug.Log("midi", "send to %s: %v", p.PortName(), err)
			p.Detach()
			return
		}
	}
}

// Attach opens the matching port from outPorts if none is attached yet, and
// detaches when the attached port has disappeared.
func (p *PortOutput) Attach(outPorts []drivers.Out) {
	if p.name == "" {
		return
	}
	current := p.PortName()
	if current != "" {
		for _, op := range outPorts {
			if op.String() == current {
				return
			}
		}
		debug.Log("midi", "output %s gone", current)
		p.Detach()
	}

	for _, op := range outPorts {
		if !MatchPort(p.name, op.String()) {
			continue
		}
		send, err := gomidi.SendTo(op)
		if err != nil {
			debug.Log("midi", "open output %s: %v", op.String(), err)
			return
		}
		p.mu.Lock()
		p.port, p.sender = op.String(), send
		p.mu.Unlock()
		debug.Log("midi", "output %s attached", op.String())
		return
	}
}

// Detach drops the port; the next scan may attach it again
func (p *PortOutput) Detach() {
	p.mu.Lock()
	p.port, p.sender = "", nil
	p.mu.Unlock()
}

// MatchPort reports whether a port name matches a configured pattern
func MatchPort(pattern, portName string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(portName), strings.ToLower(pattern))
}
