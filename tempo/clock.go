// Package tempo owns the step clock: the bpm/step-period pair, the
// self-re-arming internal tick, external MIDI clock slaving and the
// desync watchdog that falls back to internal timing.
package tempo

import (
	"sync"
	"time"

	"ghost-looper/debug"
	"ghost-looper/timebase"
)

const (
	MinBPM     = 20
	MaxBPM     = 300
	DefaultBPM = 120

	StepsPerBeat     = 4
	PulsesPerQuarter = 24
	PulsesPerStep    = PulsesPerQuarter / StepsPerBeat

	DesyncTimeout    = 250 * time.Millisecond
	WatchdogInterval = time.Second

	// minimum delay between two internal ticks when a handler overruns
	minTickDelay = time.Millisecond
)

// Source is where step ticks come from
type Source int

const (
	Internal Source = iota
	External
)

func (s Source) String() string {
	if s == External {
		return "external"
	}
	return "internal"
}

// Handler receives clock events. Methods are called without the clock's
// lock held, from timer callbacks or the MIDI input goroutine.
type Handler interface {
	// Tick advances one step. now is the logical tick time.
	Tick(now time.Time)
	// ExternalStarted is called on the first pulse after internal timing.
	ExternalStarted()
	// ExternalStopped is called when the watchdog reverts to internal timing.
	ExternalStopped()
	// TransportStart is called on a MIDI Start message.
	TransportStart()
}

// StepPeriod returns the step length for bpm: 1min / (bpm * StepsPerBeat)
func StepPeriod(bpm uint32) time.Duration {
	if bpm == 0 {
		bpm = 1
	}
	return time.Minute / time.Duration(bpm*StepsPerBeat)
}

// ClampBPM limits bpm to [MinBPM, MaxBPM]
func ClampBPM(bpm uint32) uint32 {
	return min(max(bpm, MinBPM), MaxBPM)
}

// Snapshot is a consistent copy of the clock state
type Snapshot struct {
	BPM        uint32
	StepPeriod time.Duration
	Source     Source
}

// StepPeriodMs is the period in whole milliseconds, as shown to users
func (s Snapshot) StepPeriodMs() uint32 {
	return uint32(s.StepPeriod / time.Millisecond)
}

// Clock drives Handler.Tick from an internal timer or external pulses
type Clock struct {
	clock   timebase.Clock
	handler Handler

	mu      sync.Mutex
	bpm     uint32
	period  time.Duration // always StepPeriod(bpm)
	source  Source
	running bool

	tick     timebase.Timer
	tickGen  uint64 // invalidates in-flight tick callbacks
	watchdog timebase.Timer

	pulses    uint32
	lastPulse time.Time
	accum     time.Duration
	accumN    int
}

// New creates a stopped clock at DefaultBPM
func New(clock timebase.Clock) *Clock {
	c := &Clock{clock: clock}
	c.setBPMLocked(DefaultBPM)
	return c
}

// SetHandler wires the step consumer. Must be called before Start.
func (c *Clock) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetBPM clamps bpm and updates the period in the same critical section.
// Returns the applied value.
func (c *Clock) SetBPM(bpm uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setBPMLocked(bpm)
}

func (c *Clock) setBPMLocked(bpm uint32) uint32 {
	c.bpm = ClampBPM(bpm)
	c.period = StepPeriod(c.bpm)
	return c.bpm
}

// BPM returns the current tempo
func (c *Clock) BPM() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// StepPeriod returns the current step length
func (c *Clock) StepPeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

// Source returns the active clock source
func (c *Clock) Source() Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Snapshot returns bpm, period and source read together
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{BPM: c.bpm, StepPeriod: c.period, Source: c.source}
}

// Start arms the internal tick and the watchdog
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.source = Internal
	c.armTickLocked(c.period)
	c.watchdog = c.clock.AfterFunc(WatchdogInterval, c.onWatchdog)
	debug.Log("tempo", "clock started bpm=%d period=%v", c.bpm, c.period)
}

// Stop cancels all timers. The clock can be started again.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.tickGen++
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Clock) armTickLocked(d time.Duration) {
	if c.tick != nil {
		c.tick.Stop()
	}
	c.tickGen++
	gen := c.tickGen
	c.tick = c.clock.AfterFunc(d, func() { c.onTick(gen) })
}

// onTick runs in the timer context and re-arms itself, compensating for
// the time spent in the handler.
func (c *Clock) onTick(gen uint64) {
	c.mu.Lock()
	if !c.running || c.source != Internal || gen != c.tickGen || c.handler == nil {
		c.mu.Unlock()
		return
	}
	h := c.handler
	c.mu.Unlock()

	start := c.clock.Now()
	h.Tick(start)
	elapsed := c.clock.Now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.source != Internal || gen != c.tickGen {
		return
	}
	delay := c.period - elapsed
	if delay < minTickDelay {
		delay = minTickDelay
	}
	c.armTickLocked(delay)
}

// Pulse handles one MIDI timing clock message received at now.
func (c *Clock) Pulse(now time.Time) {
	c.mu.Lock()
	if !c.running || c.handler == nil {
		c.mu.Unlock()
		return
	}

	started := false
	if c.source == Internal {
		c.source = External
		c.tickGen++
		if c.tick != nil {
			c.tick.Stop()
			c.tick = nil
		}
		c.pulses = 0
		c.accum, c.accumN = 0, 0
		c.lastPulse = time.Time{}
		started = true
	}

	if !c.lastPulse.IsZero() {
		c.accum += now.Sub(c.lastPulse)
		c.accumN++
	}
	c.lastPulse = now
	c.pulses++

	step := c.pulses%PulsesPerStep == 0
	if c.pulses%PulsesPerQuarter == 0 && c.accumN > 0 && c.accum > 0 {
		avg := c.accum / time.Duration(c.accumN)
		bpm := float64(time.Minute) / (float64(avg) * PulsesPerQuarter)
		c.setBPMLocked(uint32(bpm + 0.5))
		c.accum, c.accumN = 0, 0
	}
	h := c.handler
	c.mu.Unlock()

	if started {
		debug.Log("tempo", "external clock detected")
		h.ExternalStarted()
	}
	if step {
		h.Tick(now)
	}
}

// TransportStart handles a MIDI Start message: the pulse phase restarts.
func (c *Clock) TransportStart() {
	c.mu.Lock()
	c.pulses = 0
	c.accum, c.accumN = 0, 0
	h := c.handler
	c.mu.Unlock()

	debug.Log("tempo", "MIDI start")
	if h != nil {
		h.TransportStart()
	}
}

// onWatchdog audits external pulses once per WatchdogInterval for the
// lifetime of the clock.
func (c *Clock) onWatchdog() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	lost := c.source == External && c.clock.Now().Sub(c.lastPulse) > DesyncTimeout
	if lost {
		c.source = Internal
		c.pulses = 0
		c.armTickLocked(c.period)
	}
	c.watchdog = c.clock.AfterFunc(WatchdogInterval, c.onWatchdog)
	h := c.handler
	c.mu.Unlock()

	if lost {
		debug.Log("tempo", "external clock lost, reverting to internal")
		if h != nil {
			h.ExternalStopped()
		}
	}
}
