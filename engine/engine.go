// Package engine wires the looper to its transports and runs the main
// loop.
package engine

import (
	"context"
	"time"

	"ghost-looper/audio"
	"ghost-looper/button"
	"ghost-looper/config"
	"ghost-looper/debug"
	"ghost-looper/ghost"
	"ghost-looper/midi"
	"ghost-looper/scheduler"
	"ghost-looper/sequencer"
	"ghost-looper/storage"
	"ghost-looper/tempo"
	"ghost-looper/timebase"
)

// LoopInterval is the main loop polling period
const LoopInterval = time.Millisecond

// Engine owns every runtime component. Timer callbacks drive the tempo
// clock and the scheduler; Run drives everything else.
type Engine struct {
	Clock     timebase.Clock
	Tempo     *tempo.Clock
	Scheduler *scheduler.Scheduler
	Looper    *sequencer.Looper
	Button    *button.Classifier
	Devices   *midi.DeviceManager
	Outputs   midi.Outputs

	port   *midi.PortOutput
	serial *midi.SerialOutput
	synth  *audio.Synth
}

// New builds an engine from cfg. extra outputs are added to the configured
// ones.
func New(cfg *config.Config, clock timebase.Clock, extra ...midi.Output) *Engine {
	e := &Engine{Clock: clock}

	if cfg.Output.PortName != "" {
		e.port = midi.NewPortOutput(cfg.Output.PortName)
		e.Outputs = append(e.Outputs, e.port)
	}
	if cfg.Output.SerialDevice != "" {
		e.serial = midi.NewSerialOutput(cfg.Output.SerialDevice, cfg.Output.SerialBaud)
		e.Outputs = append(e.Outputs, e.serial)
	}
	if cfg.Output.Synth.Enabled {
		synth, err := audio.NewSynth(cfg.Output.Synth.SoundFont)
		if err != nil {
			debug.Log("engine", "soundfont unavailable, using built-in voices: %v", err)
			synth, _ = audio.NewSynth("")
		}
		e.synth = synth
		e.Outputs = append(e.Outputs, synth)
	}
	e.Outputs = append(e.Outputs, extra...)

	e.Scheduler = scheduler.New(clock, e.Outputs, cfg.Scheduler.Capacity)
	e.Tempo = tempo.New(clock)
	e.Tempo.SetBPM(cfg.Tempo.DefaultBPM)
	e.Button = button.NewClassifier(clock)

	gen := ghost.New(cfg.Ghost, cfg.Seed)
	kit := sequencer.GetKit(cfg.Kit.Name)
	e.Looper = sequencer.New(clock, e.Tempo, e.Scheduler, e.Outputs, gen, kit.Tracks())
	e.Looper.SetKit(kit)

	if store := openStore(cfg.StoragePath); store != nil {
		e.Looper.SetStore(store)
		e.Looper.Restore()
	}

	e.Devices = midi.NewDeviceManager(cfg.MIDIOptions(), e.port, e.serial, e.Tempo, e.Button, clock.Now)
	return e
}

// openStore opens the pattern file; an empty path means the default
func openStore(path string) storage.Store {
	f, err := storage.NewFile(path)
	if err != nil {
		debug.Log("engine", "storage disabled: %v", err)
		return nil
	}
	return f
}

// AddRenderer registers a status renderer
func (e *Engine) AddRenderer(r sequencer.Renderer) {
	e.Looper.AddRenderer(r)
}

// Run starts the clock and device scanning, then polls until ctx is done.
// On return the clock and scheduler are stopped and transports closed.
func (e *Engine) Run(ctx context.Context) error {
	if e.synth != nil {
		if err := e.synth.Start(); err != nil {
			debug.Log("engine", "audio output disabled: %v", err)
		}
	}

	devCtx, cancelDevices := context.WithCancel(ctx)
	devDone := make(chan struct{})
	go func() {
		defer close(devDone)
		e.Devices.Run(devCtx)
	}()

	e.Tempo.Start()
	debug.Log("engine", "started at %d bpm", e.Tempo.BPM())

	defer func() {
		e.Tempo.Stop()
		e.Scheduler.Close()
		cancelDevices()
		<-devDone
		if e.port != nil {
			e.port.Detach()
		}
		if e.synth != nil {
			e.synth.Close()
		}
		debug.Log("engine", "stopped (%d notes dropped)", e.Scheduler.Dropped())
	}()

	ticker := time.NewTicker(LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

// Step is one main loop iteration: handle a button event, deliver due
// notes and mirror the status LED.
func (e *Engine) Step() {
	e.Looper.HandleButton(e.Button.Poll())
	e.Scheduler.DispatchPending()

	// controllers drop repeated values
	e.Devices.SetIndicator(e.Looper.Indicator())
}
