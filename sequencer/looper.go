package sequencer

import (
	"errors"
	"math"
	"sync"
	"time"

	"ghost-looper/button"
	"ghost-looper/debug"
	"ghost-looper/ghost"
	"ghost-looper/storage"
	"ghost-looper/taptempo"
	"ghost-looper/tempo"
	"ghost-looper/timebase"
)

// Output reports whether any note transport can accept notes
type Output interface {
	Ready() bool
}

// NoteScheduler accepts notes for delivery at a deadline
type NoteScheduler interface {
	Schedule(deadline time.Time, channel, note, velocity uint8) bool
}

// TapDetector turns clicks into a tempo while in TapTempo
type TapDetector interface {
	HandleEvent(ev button.Event) taptempo.Result
	BPM() uint32
	Reset()
}

// Renderer receives a detached copy of the looper once per tick. It must
// not block.
type Renderer interface {
	Render(ready bool, st Status, tracks []Track)
}

// Looper is the step sequencer. Tick runs in timer context, HandleButton in
// the main loop; both serialize on mu. Persistence and rendering happen
// after mu is released.
type Looper struct {
	clock timebase.Clock
	tempo *tempo.Clock
	sched NoteScheduler
	out   Output
	ghost *ghost.Generator
	taps  TapDetector
	store storage.Store
	kit   Kit

	mu     sync.Mutex
	status Status
	tracks []Track
	lanes  []*ghost.Lane

	rmu       sync.Mutex
	renderers []Renderer
}

// New creates a looper in Waiting. An empty track list means DefaultTracks.
// The looper registers itself as tc's handler.
func New(clock timebase.Clock, tc *tempo.Clock, sched NoteScheduler, out Output, gen *ghost.Generator, tracks []Track) *Looper {
	if len(tracks) == 0 {
		tracks = DefaultTracks()
	}
	l := &Looper{
		clock:  clock,
		tempo:  tc,
		sched:  sched,
		out:    out,
		ghost:  gen,
		taps:   taptempo.New(clock),
		kit:    GetKit(DefaultKit),
		tracks: append([]Track(nil), tracks...),
	}
	l.lanes = make([]*ghost.Lane, len(l.tracks))
	for i := range l.tracks {
		l.lanes[i] = &l.tracks[i].Lane
	}

	snap := tc.Snapshot()
	l.status = Status{
		State:       Waiting,
		BPM:         snap.BPM,
		StepPeriod:  snap.StepPeriod,
		ClockSource: snap.Source,
		SwingRatio:  gen.SwingRatio(),
		Intensity:   gen.Intensity(),
	}
	tc.SetHandler(l)
	return l
}

// SetStore enables persistence
func (l *Looper) SetStore(s storage.Store) {
	l.mu.Lock()
	l.store = s
	l.mu.Unlock()
}

// SetTapDetector replaces the default tap tempo detector
func (l *Looper) SetTapDetector(d TapDetector) {
	l.mu.Lock()
	l.taps = d
	l.mu.Unlock()
}

// SetKit remaps the cue notes and the notes of the first four tracks.
// Patterns are kept.
func (l *Looper) SetKit(k Kit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kit = k
	for i, t := range k.Tracks() {
		if i < len(l.tracks) {
			l.tracks[i].Note = t.Note
		}
	}
	debug.Log("looper", "kit %s", k.Name)
}

// AddRenderer registers a renderer
func (l *Looper) AddRenderer(r Renderer) {
	l.rmu.Lock()
	l.renderers = append(l.renderers, r)
	l.rmu.Unlock()
}

// Restore loads persisted patterns into the tracks. Missing or invalid
// storage leaves the tracks untouched.
func (l *Looper) Restore() bool {
	l.mu.Lock()
	store := l.store
	l.mu.Unlock()
	if store == nil {
		return false
	}

	patterns, err := store.Load()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			debug.Log("looper", "restore failed: %v", err)
		}
		return false
	}

	l.mu.Lock()
	for i := range l.tracks {
		if i < len(patterns) {
			l.tracks[i].Pattern = patterns[i]
		}
	}
	l.mu.Unlock()
	debug.Log("looper", "restored %d tracks", min(len(patterns), len(l.tracks)))
	return true
}

// Tick performs one step. It is the tempo clock's step callback.
func (l *Looper) Tick(now time.Time) {
	ready := l.out.Ready()
	tc := l.tempo.Snapshot()

	l.mu.Lock()
	s := &l.status
	s.BPM, s.StepPeriod, s.ClockSource = tc.BPM, tc.StepPeriod, tc.Source
	if !ready && s.State != Waiting {
		debug.Log("looper", "output not ready in %s, waiting", s.State)
		s.State = Waiting
	}

	persist := l.stepLocked(now, ready)

	s.LFOPhase += LFORate
	cur := ghost.Cursor{
		Step:       s.CurrentStep,
		BarCounter: s.GhostBarCounter,
		LFOPhase:   s.LFOPhase,
		Playing:    s.State == Playing || s.State == SyncPlaying,
	}
	l.ghost.Maintain(&cur, l.lanes)
	s.GhostBarCounter = cur.BarCounter
	s.SwingRatio = l.ghost.SwingRatio()
	s.Intensity = l.ghost.Intensity()

	var patterns []storage.Pattern
	if persist {
		patterns = l.patternsLocked()
	}
	st, tracks := l.snapshotLocked()
	l.mu.Unlock()

	if persist {
		l.persist(patterns)
	}
	l.render(ready, st, tracks)
}

// stepLocked runs the per-state tick behaviour and reports whether the
// patterns need persisting
func (l *Looper) stepLocked(now time.Time, ready bool) bool {
	s := &l.status
	switch s.State {
	case Waiting:
		if !ready {
			s.Indicator = s.CurrentStep%(ClickDiv*ghost.BeatsPerBar) == 0
			l.advanceLocked(now)
			return false
		}
		s.CurrentStep = 0
		s.State = Playing
		if s.ClockSource == tempo.External {
			s.State = SyncPlaying
		}
		debug.Log("looper", "output ready, %s", s.State)
		return l.stepLocked(now, ready)

	case Playing:
		l.clickLocked(now)
		l.performLocked(now)
		l.advanceLocked(now)

	case Recording:
		l.clickLocked(now)
		l.performRecordingLocked(now)
		persist := false
		if s.RecordingStepCount >= TotalSteps {
			s.Indicator = false
			s.State = Playing
			persist = true
			debug.Log("looper", "recording finished on track %d", s.CurrentTrack)
		}
		l.advanceLocked(now)
		s.RecordingStepCount++
		return persist

	case TrackSwitch:
		s.CurrentTrack = (s.CurrentTrack + 1) % len(l.tracks)
		l.sched.Schedule(now, DrumChannel, l.kit.OpenHiHat, FullVelocity)
		l.advanceLocked(now)
		s.State = Playing

	case TapTempo:
		l.clickLocked(now)
		s.Indicator = s.CurrentStep%ClickDiv == 0
		l.advanceLocked(now)

	case ClearTracks:
		for i := range l.tracks {
			l.tracks[i].Clear()
		}
		s.CurrentTrack = 0
		s.BPM = l.tempo.SetBPM(tempo.DefaultBPM)
		s.StepPeriod = tempo.StepPeriod(s.BPM)
		l.advanceLocked(now)
		s.State = Playing
		debug.Log("looper", "tracks cleared")
		return true

	case SyncPlaying:
		l.performLocked(now)
		s.Indicator = true
		l.advanceLocked(now)

	case SyncMute:
		s.Indicator = false
		l.advanceLocked(now)
	}
	return false
}

func (l *Looper) advanceLocked(now time.Time) {
	l.status.LastStepTime = now
	l.status.CurrentStep = (l.status.CurrentStep + 1) % TotalSteps
}

// clickLocked sounds the metronome on beat steps, accented on the loop start
func (l *Looper) clickLocked(now time.Time) {
	step := l.status.CurrentStep
	if step%ClickDiv != 0 {
		return
	}
	vel := uint8(ClickVelocity)
	if step == 0 {
		vel = AccentVelocity
	}
	l.sched.Schedule(now, ClickChannel, l.kit.RimShot, vel)
}

// performLocked schedules hits, ghost notes and fills for the current step
func (l *Looper) performLocked(now time.Time) {
	s := &l.status
	step := s.CurrentStep
	deadline := now.Add(l.swingOffsetLocked(step))
	intensity := l.ghost.Intensity()

	for i := range l.tracks {
		t := &l.tracks[i]
		hit := t.Pattern[step]
		if hit {
			l.sched.Schedule(deadline, t.Channel, t.Note, ghost.ModulateVelocity(i, FullVelocity, s.LFOPhase))
		}
		if i == s.CurrentTrack {
			s.Indicator = hit
		}
		if t.GhostAt(step, intensity) && !t.Fill[step] {
			l.sched.Schedule(deadline, t.Channel, t.Note, ghost.Velocity(i))
		}
		if t.Fill[step] && !hit {
			l.sched.Schedule(deadline, t.Channel, t.Note, FullVelocity)
		}
	}
}

// performRecordingLocked plays only recorded hits, at full velocity
func (l *Looper) performRecordingLocked(now time.Time) {
	step := l.status.CurrentStep
	deadline := now.Add(l.swingOffsetLocked(step))
	l.status.Indicator = true
	for i := range l.tracks {
		t := &l.tracks[i]
		if t.Pattern[step] {
			l.sched.Schedule(deadline, t.Channel, t.Note, FullVelocity)
		}
	}
}

func (l *Looper) swingOffsetLocked(step int) time.Duration {
	return tempo.SwingOffset(step, l.status.StepPeriod, l.ghost.SwingRatio())
}

// SwingOffset is the delay applied to notes on step at the current tempo
// and swing
func (l *Looper) SwingOffset(step int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.swingOffsetLocked(step)
}

// Quantize maps a press time to the nearest step. currentStep is the step
// about to play, so the step that played at lastStep is currentStep-1.
func Quantize(currentStep int, lastStep, press time.Time, period time.Duration) int {
	prev := (currentStep - 1 + TotalSteps) % TotalSteps
	if period <= 0 {
		return prev
	}
	rel := int(math.Round(float64(press.Sub(lastStep)) / float64(period)))
	return ((prev+rel)%TotalSteps + TotalSteps) % TotalSteps
}

// QuantizeStep quantizes the last button press
func (l *Looper) QuantizeStep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quantizeLocked()
}

func (l *Looper) quantizeLocked() int {
	s := &l.status
	return Quantize(s.CurrentStep, s.LastStepTime, s.ButtonPressStart, s.StepPeriod)
}

// ExternalStarted switches to synced playback when the first clock pulse
// arrives. Tap tempo gives way to a muted loop.
func (l *Looper) ExternalStarted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &l.status
	s.ClockSource = tempo.External
	if s.State == TapTempo {
		s.State = SyncMute
	} else {
		s.State = SyncPlaying
	}
	debug.Log("looper", "external clock, %s", s.State)
}

// ExternalStopped rewinds and waits after the external clock went silent
func (l *Looper) ExternalStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &l.status
	s.ClockSource = tempo.Internal
	s.CurrentStep = 0
	s.GhostBarCounter = 0
	s.LFOPhase = 0
	s.State = Waiting
	debug.Log("looper", "external clock lost, waiting")
}

// TransportStart rewinds to the loop start on a MIDI Start message
func (l *Looper) TransportStart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.CurrentStep = 0
	l.status.GhostBarCounter = 0
	l.status.LFOPhase = 0
}

// Snapshot returns output readiness with detached copies of status and
// tracks
func (l *Looper) Snapshot() (bool, Status, []Track) {
	ready := l.out.Ready()
	l.mu.Lock()
	defer l.mu.Unlock()
	st, tracks := l.snapshotLocked()
	return ready, st, tracks
}

// Status returns a copy of the status
func (l *Looper) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Indicator is the status LED value
func (l *Looper) Indicator() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.Indicator
}

func (l *Looper) snapshotLocked() (Status, []Track) {
	return l.status, append([]Track(nil), l.tracks...)
}

func (l *Looper) patternsLocked() []storage.Pattern {
	out := make([]storage.Pattern, len(l.tracks))
	for i := range l.tracks {
		out[i] = l.tracks[i].Pattern
	}
	return out
}

func (l *Looper) persist(patterns []storage.Pattern) {
	l.mu.Lock()
	store := l.store
	l.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.Store(patterns); err != nil {
		debug.Log("looper", "store tracks: %v", err)
	}
}

func (l *Looper) erase() {
	l.mu.Lock()
	store := l.store
	l.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.Erase(); err != nil {
		debug.Log("looper", "erase tracks: %v", err)
	}
}

func (l *Looper) render(ready bool, st Status, tracks []Track) {
	l.rmu.Lock()
	rs := l.renderers
	l.rmu.Unlock()
	for _, r := range rs {
		r.Render(ready, st, tracks)
	}
}
