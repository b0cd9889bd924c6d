package midi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ghost-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ScanTimeout bounds one port listing (CoreMIDI can hang)
const ScanTimeout = 3 * time.Second

// DeviceEvent is emitted when devices connect/disconnect
type DeviceEvent struct {
	Type DeviceEventType
	Kind string // "launchpad", "keyboard", "clock", "output", "serial"
	ID   string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// Options selects ports by case-insensitive name fragment. Empty fragments
// disable the role.
type Options struct {
	ClockPort  string
	ButtonPort string
	ButtonNote int // AnyNote for every note
	Launchpad  bool
	Pad        Pad
	PadRGB     [3]uint8
}

// PortLister lists the system MIDI ports
type PortLister func() ([]drivers.In, []drivers.Out)

// SystemPorts lists ports through the registered driver
func SystemPorts() ([]drivers.In, []drivers.Out) {
	return gomidi.GetInPorts(), gomidi.GetOutPorts()
}

// closer is the common part of inputs and controllers
type closer interface {
	Close() error
}

// DeviceManager handles hot-plug detection: it keeps the output port
// attached, the serial output open, and inputs listening while their
// devices are present.
type DeviceManager struct {
	opts   Options
	list   PortLister
	output *PortOutput
	serial *SerialOutput
	clock  ClockSink
	button LevelSink
	now    func() time.Time

	mu          sync.RWMutex
	inputs      map[string]closer
	controllers map[string]Controller
	serialUp    bool

	events   chan DeviceEvent
	pollRate time.Duration
}

// NewDeviceManager creates a device manager. output and serial may be nil.
func NewDeviceManager(opts Options, output *PortOutput, serial *SerialOutput, clock ClockSink, button LevelSink, now func() time.Time) *DeviceManager {
	return &DeviceManager{
		opts:        opts,
		list:        SystemPorts,
		output:      output,
		serial:      serial,
		clock:       clock,
		button:      button,
		now:         now,
		inputs:      make(map[string]closer),
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// SetPortLister replaces the system port listing
func (dm *DeviceManager) SetPortLister(l PortLister) {
	dm.list = l
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() []Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]Controller, 0, len(dm.controllers))
	for _, c := range dm.controllers {
		out = append(out, c)
	}
	return out
}

// SetIndicator mirrors the status LED on every controller that has one
func (dm *DeviceManager) SetIndicator(on bool) {
	for _, c := range dm.Controllers() {
		if err := c.SetIndicator(on); err != nil {
			debug.Debugf("midi", "indicator on %s: %v", c.ID(), err)
		}
	}
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.Scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.Scan()
		}
	}
}

// Scan lists ports once and reconciles devices with them
func (dm *DeviceManager) Scan() {
	in, out, ok := listPorts(dm.list, ScanTimeout)
	if !ok {
		// CoreMIDI is hung - skip this scan
		debug.Log("midi", "port scan timed out")
		return
	}

	dm.scanOutputs(out)
	dm.scanInputs(in, out)
}

// listPorts runs list with a timeout. The listing goroutine is abandoned
// if the driver hangs.
func listPorts(list PortLister, timeout time.Duration) ([]drivers.In, []drivers.Out, bool) {
	type portsResult struct {
		in  []drivers.In
		out []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		in, out := list()
		ch <- portsResult{in: in, out: out}
	}()

	select {
	case res := <-ch:
		return res.in, res.out, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

// PortNames lists input and output port names through the system driver
func PortNames() (ins, outs []string, err error) {
	in, out, ok := listPorts(SystemPorts, ScanTimeout)
	if !ok {
		return nil, nil, fmt.Errorf("midi port listing timed out after %v", ScanTimeout)
	}
	for _, p := range in {
		ins = append(ins, p.String())
	}
	for _, p := range out {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

func (dm *DeviceManager) scanOutputs(outPorts []drivers.Out) {
	if dm.output != nil {
		before := dm.output.PortName()
		dm.output.Attach(outPorts)
		after := dm.output.PortName()
		if before != after {
			if before != "" {
				dm.emit(DeviceEvent{Type: DeviceDisconnected, Kind: "output", ID: before})
			}
			if after != "" {
				dm.emit(DeviceEvent{Type: DeviceConnected, Kind: "output", ID: after})
			}
		}
	}

	if dm.serial != nil && dm.serial.Device() != "" {
		err := dm.serial.Reconnect()
		up := dm.serial.Ready()
		if err != nil {
			debug.Debugf("midi", "serial %s: %v", dm.serial.Device(), err)
		}
		dm.mu.Lock()
		changed := up != dm.serialUp
		dm.serialUp = up
		dm.mu.Unlock()
		if changed {
			typ := DeviceConnected
			if !up {
				typ = DeviceDisconnected
			}
			dm.emit(DeviceEvent{Type: typ, Kind: "serial", ID: dm.serial.Device()})
		}
	}
}

func (dm *DeviceManager) scanInputs(inPorts []drivers.In, outPorts []drivers.Out) {
	seen := make(map[string]bool)

	for _, in := range inPorts {
		id := in.String()
		kind, route := dm.classify(id)
		if kind == "" {
			continue
		}
		seen[id] = true

		dm.mu.RLock()
		_, open := dm.inputs[id]
		dm.mu.RUnlock()
		if open {
			continue
		}

		var (
			dev closer
			err error
		)
		switch kind {
		case "launchpad":
			var lp *LaunchpadController
			lp, err = NewLaunchpadController(id, in, matchingOut(id, outPorts), dm.opts.Pad, dm.opts.PadRGB, dm.button)
			if err == nil {
				dev = lp
				dm.mu.Lock()
				dm.controllers[id] = lp
				dm.mu.Unlock()
			}
		case "keyboard":
			var kb *KeyboardController
			kb, err = NewKeyboardController(id, in, route)
			if err == nil {
				dev = kb
				dm.mu.Lock()
				dm.controllers[id] = kb
				dm.mu.Unlock()
			}
		default:
			dev, err = OpenInput(id, in, route)
		}
		if err != nil {
			debug.Log("midi", "open %s %s: %v", kind, id, err)
			continue
		}

		dm.mu.Lock()
		dm.inputs[id] = dev
		dm.mu.Unlock()
		dm.emit(DeviceEvent{Type: DeviceConnected, Kind: kind, ID: id})
	}

	// Check for disconnects
	dm.mu.Lock()
	var gone []string
	for id, dev := range dm.inputs {
		if !seen[id] {
			dev.Close()
			delete(dm.inputs, id)
			delete(dm.controllers, id)
			gone = append(gone, id)
		}
	}
	dm.mu.Unlock()
	for _, id := range gone {
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

// classify decides the role of an input port. A port can carry both the
// clock and the button.
func (dm *DeviceManager) classify(name string) (string, Route) {
	route := Route{Now: dm.now, ButtonNote: dm.opts.ButtonNote}
	if MatchPort(dm.opts.ClockPort, name) && dm.clock != nil {
		route.Clock = dm.clock
	}
	switch {
	case dm.opts.Launchpad && isLaunchpad(name):
		return "launchpad", route
	case MatchPort(dm.opts.ButtonPort, name) && dm.button != nil:
		route.Button = dm.button
		return "keyboard", route
	case route.Clock != nil:
		return "clock", route
	}
	return "", route
}

func matchingOut(name string, outPorts []drivers.Out) drivers.Out {
	for _, op := range outPorts {
		if op.String() == name {
			return op
		}
	}
	return nil
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, dev := range dm.inputs {
		dev.Close()
	}
	dm.inputs = make(map[string]closer)
	dm.controllers = make(map[string]Controller)
	if dm.serial != nil {
		dm.serial.Close()
	}
}
