// Package taptempo derives a tempo from successive button clicks.
package taptempo

import (
	"time"

	"ghost-looper/button"
	"ghost-looper/debug"
	"ghost-looper/timebase"
)

// Result tells the caller what a handled event produced
type Result int

const (
	Ignored Result = iota
	Preliminary
	Final
	Exit
)

func (r Result) String() string {
	switch r {
	case Preliminary:
		return "preliminary"
	case Final:
		return "final"
	case Exit:
		return "exit"
	default:
		return "ignored"
	}
}

const (
	Timeout = time.Second // longest gap between taps
	MaxTaps = 4
	MinBPM  = 40
	MaxBPM  = 240
)

// Detector collects clicks. A gap longer than Timeout restarts collection
// with the late tap as the first one.
type Detector struct {
	clock timebase.Clock
	taps  [MaxTaps]time.Time
	count int
	bpm   uint32
}

// New creates an idle detector
func New(clock timebase.Clock) *Detector {
	return &Detector{clock: clock}
}

// BPM is the last computed tempo, 0 before the first estimate
func (d *Detector) BPM() uint32 {
	return d.bpm
}

// Reset discards collected taps
func (d *Detector) Reset() {
	d.count = 0
}

// HandleEvent feeds one button event. Clicks are taps; releasing any hold
// leaves tap tempo mode.
func (d *Detector) HandleEvent(ev button.Event) Result {
	switch ev {
	case button.LongPressRelease, button.LongHoldRelease:
		d.Reset()
		return Exit
	case button.ShortPressRelease:
		return d.tap(d.clock.Now())
	default:
		return Ignored
	}
}

func (d *Detector) tap(now time.Time) Result {
	if d.count > 0 && now.Sub(d.taps[d.count-1]) > Timeout {
		debug.Debugf("taptempo", "timeout after %v, restarting", now.Sub(d.taps[d.count-1]))
		d.count = 0
	}
	d.taps[d.count] = now
	d.count++

	switch d.count {
	case 1:
		return Ignored
	case 2:
		d.bpm = Compute(d.taps[:2])
		return Preliminary
	case 3:
		d.bpm = Compute(d.taps[:3])
		return Final
	default:
		d.bpm = Compute(d.taps[:d.count])
		d.count = 0
		return Final
	}
}

// Compute derives a clamped tempo from tap times, rounding to the nearest
// whole BPM over the whole span.
func Compute(taps []time.Time) uint32 {
	if len(taps) < 2 {
		return 0
	}
	intervals := int64(len(taps) - 1)
	deltaMs := taps[len(taps)-1].Sub(taps[0]).Milliseconds()
	if deltaMs <= 0 {
		return MaxBPM
	}
	bpm := (60000*intervals + deltaMs/2) / deltaMs
	return uint32(min(max(bpm, MinBPM), MaxBPM))
}
