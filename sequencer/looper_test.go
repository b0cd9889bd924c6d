package sequencer

import (
	"sync"
	"testing"
	"time"

	"ghost-looper/button"
	"ghost-looper/ghost"
	"ghost-looper/storage"
	"ghost-looper/tempo"
	"ghost-looper/timebase"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type note struct {
	at           time.Time
	ch, key, vel uint8
}

type noteLog struct {
	mu    sync.Mutex
	notes []note
}

func (n *noteLog) Schedule(deadline time.Time, ch, key, vel uint8) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{deadline, ch, key, vel})
	return true
}

func (n *noteLog) take() []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.notes
	n.notes = nil
	return out
}

func (n *noteLog) has(key uint8) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, x := range n.notes {
		if x.key == key {
			return true
		}
	}
	return false
}

type readyFlag struct {
	mu    sync.Mutex
	ready bool
}

func (r *readyFlag) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *readyFlag) set(v bool) {
	r.mu.Lock()
	r.ready = v
	r.mu.Unlock()
}

type memStore struct {
	mu     sync.Mutex
	saved  []storage.Pattern
	stores int
	erases int
}

func (m *memStore) Load() ([]storage.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, storage.ErrNotFound
	}
	return append([]storage.Pattern(nil), m.saved...), nil
}

func (m *memStore) Store(p []storage.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append([]storage.Pattern(nil), p...)
	m.stores++
	return nil
}

func (m *memStore) Erase() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	m.erases++
	return nil
}

type rig struct {
	fake  *timebase.Fake
	tempo *tempo.Clock
	notes *noteLog
	out   *readyFlag
	store *memStore
	l     *Looper
}

func newRig(t *testing.T, ready bool) *rig {
	t.Helper()
	fake := timebase.NewFake(epoch)
	tc := tempo.New(fake)
	r := &rig{
		fake:  fake,
		tempo: tc,
		notes: &noteLog{},
		out:   &readyFlag{ready: ready},
		store: &memStore{},
	}
	r.l = New(fake, tc, r.notes, r.out, ghost.New(ghost.DefaultParameters(), 1), nil)
	r.l.SetStore(r.store)
	return r
}

// tick advances fake time by one step period and runs one step
func (r *rig) tick() {
	r.fake.Advance(r.tempo.StepPeriod())
	r.l.Tick(r.fake.Now())
}

func TestWaitsForOutput(t *testing.T) {
	r := newRig(t, false)

	r.tick()
	r.tick()
	st := r.l.Status()
	if st.State != Waiting {
		t.Fatalf("State = %s, want waiting", st.State)
	}
	if st.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d while waiting, want 2", st.CurrentStep)
	}
	if n := len(r.notes.take()); n != 0 {
		t.Errorf("%d notes scheduled while waiting", n)
	}

	r.out.set(true)
	r.tick()
	st = r.l.Status()
	if st.State != Playing {
		t.Fatalf("State = %s, want playing", st.State)
	}
	// entering Playing restarts at step 0, which plays the accented click
	notes := r.notes.take()
	if len(notes) != 1 || notes[0].key != NoteRimShot || notes[0].vel != AccentVelocity {
		t.Errorf("notes = %+v, want one accented click", notes)
	}
	if st.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", st.CurrentStep)
	}
}

func TestOutputLossForcesWaiting(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease)
	if r.l.Status().State != Recording {
		t.Fatal("not recording")
	}
	r.out.set(false)
	r.tick()
	if s := r.l.Status().State; s != Waiting {
		t.Errorf("State = %s after output loss, want waiting", s)
	}
}

func TestClickPattern(t *testing.T) {
	r := newRig(t, true)
	var clicks []uint8
	for i := 0; i < TotalSteps; i++ {
		r.tick()
		for _, n := range r.notes.take() {
			if n.key == NoteRimShot {
				clicks = append(clicks, n.vel)
			}
		}
	}
	if len(clicks) != TotalSteps/ClickDiv {
		t.Fatalf("%d clicks per loop, want %d", len(clicks), TotalSteps/ClickDiv)
	}
	if clicks[0] != AccentVelocity {
		t.Errorf("first click velocity = %#x, want accent", clicks[0])
	}
	for _, v := range clicks[1:] {
		if v != ClickVelocity {
			t.Errorf("click velocity = %#x, want %#x", v, ClickVelocity)
		}
	}
}

func TestQuantize(t *testing.T) {
	period := 125 * time.Millisecond
	last := epoch
	tests := []struct {
		name    string
		current int
		press   time.Duration
		want    int
	}{
		{"on the last step", 5, 0, 4},
		{"just after", 5, 40 * time.Millisecond, 4},
		{"closer to next", 5, 70 * time.Millisecond, 5},
		{"a full period late", 5, period, 5},
		{"early press", 5, -70 * time.Millisecond, 3},
		{"wraps backwards", 0, 0, 31},
		{"wraps forwards", 0, period, 0},
		{"far early wraps", 1, -2 * period, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantize(tt.current, last, last.Add(tt.press), period); got != tt.want {
				t.Errorf("Quantize() = %d, want %d", got, tt.want)
			}
		})
	}
	if got := Quantize(3, last, last.Add(time.Second), 0); got != 2 {
		t.Errorf("Quantize() with zero period = %d, want 2", got)
	}
}

func TestRecordingCycle(t *testing.T) {
	r := newRig(t, true)
	r.store.saved = []storage.Pattern{{}}
	for i := 0; i < 4; i++ {
		r.tick()
	}

	// press lands exactly on the step that just played (3)
	r.l.HandleButton(button.Down)
	if !r.notes.has(NoteBassDrum) {
		t.Error("button-down did not preview the selected track")
	}
	r.l.HandleButton(button.ShortPressRelease)

	_, st, tracks := r.l.Snapshot()
	if st.State != Recording {
		t.Fatalf("State = %s, want recording", st.State)
	}
	if !tracks[0].Pattern[3] {
		t.Errorf("pattern = %v, want hit at step 3", tracks[0].Pattern)
	}
	if r.store.erases != 1 {
		t.Errorf("erases = %d, want 1 on entering recording", r.store.erases)
	}

	// a second click while recording adds without clearing
	r.tick()
	r.fake.Advance(10 * time.Millisecond)
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease)
	_, _, tracks = r.l.Snapshot()
	if !tracks[0].Pattern[3] || !tracks[0].Pattern[4] {
		t.Errorf("second recorded hit missing: %v", tracks[0].Pattern)
	}

	for i := 1; i < TotalSteps; i++ {
		r.tick()
	}
	if s := r.l.Status().State; s != Recording {
		t.Fatalf("State = %s after %d ticks, want still recording", s, TotalSteps)
	}
	r.tick()
	if s := r.l.Status().State; s != Playing {
		t.Fatalf("State = %s, want playing after the recording loop", s)
	}
	if r.store.stores != 1 || !r.store.saved[0][3] || !r.store.saved[0][4] {
		t.Errorf("stores = %d saved = %v, want the recorded pattern persisted", r.store.stores, r.store.saved)
	}
}

func TestRecordingPlaysAtFullVelocity(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease) // hit at step 0
	r.notes.take()

	for i := 0; i < TotalSteps; i++ {
		r.tick()
		if r.l.Status().CurrentStep == 1 {
			break
		}
	}
	var found bool
	for _, n := range r.notes.take() {
		if n.key == NoteBassDrum {
			found = true
			if n.vel != FullVelocity {
				t.Errorf("recorded hit velocity = %#x, want %#x", n.vel, FullVelocity)
			}
		}
	}
	if !found {
		t.Error("recorded hit not played back")
	}
	if !r.l.Indicator() {
		t.Error("indicator off while recording")
	}
}

func TestTrackSwitchKeepsPattern(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease)
	_, _, before := r.l.Snapshot()

	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.LongPressBegin)
	r.l.HandleButton(button.LongPressRelease)
	if s := r.l.Status().State; s != TrackSwitch {
		t.Fatalf("State = %s, want track-switch", s)
	}
	r.notes.take()
	r.tick()

	_, st, after := r.l.Snapshot()
	if st.State != Playing || st.CurrentTrack != 1 {
		t.Errorf("state %s track %d, want playing on track 1", st.State, st.CurrentTrack)
	}
	if after[0].Pattern != before[0].Pattern {
		t.Error("hold release changed the pattern")
	}
	if !r.notes.has(NoteOpenHiHat) {
		t.Error("no track switch cue")
	}

	// wraps around the track list
	for i := 0; i < len(after)-1; i++ {
		r.l.HandleButton(button.Down)
		r.l.HandleButton(button.LongPressRelease)
		r.tick()
	}
	if tr := r.l.Status().CurrentTrack; tr != 0 {
		t.Errorf("CurrentTrack = %d after a full cycle, want 0", tr)
	}
}

func TestClearTracks(t *testing.T) {
	r := newRig(t, true)
	r.tempo.SetBPM(90)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease)

	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.VeryLongHoldRelease)
	if s := r.l.Status().State; s != ClearTracks {
		t.Fatalf("State = %s, want clear-tracks", s)
	}
	if !r.notes.has(NoteCymbal) {
		t.Error("no clear cue")
	}
	r.tick()

	_, st, tracks := r.l.Snapshot()
	if st.State != Playing || st.CurrentTrack != 0 {
		t.Errorf("state %s track %d, want playing on track 0", st.State, st.CurrentTrack)
	}
	if r.tempo.BPM() != tempo.DefaultBPM || st.BPM != tempo.DefaultBPM {
		t.Errorf("BPM = %d/%d, want %d", r.tempo.BPM(), st.BPM, tempo.DefaultBPM)
	}
	for i, tr := range tracks {
		if tr.Hits() != 0 || tr.Ghost != ([TotalSteps]ghost.Note{}) {
			t.Errorf("track %d not cleared", i)
		}
	}
	if r.store.stores != 1 {
		t.Errorf("stores = %d, want 1", r.store.stores)
	}
}

func TestTapTempoMode(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.LongHoldRelease)
	if s := r.l.Status().State; s != TapTempo {
		t.Fatalf("State = %s, want tap-tempo", s)
	}
	if !r.notes.has(NoteOpenHiHat) {
		t.Error("no tap tempo cue")
	}

	for i := 0; i < 3; i++ {
		r.l.HandleButton(button.Down)
		r.l.HandleButton(button.ShortPressRelease)
		r.fake.Advance(600 * time.Millisecond)
	}
	if bpm := r.tempo.BPM(); bpm != 100 {
		t.Errorf("BPM = %d after taps 600ms apart, want 100", bpm)
	}
	if s := r.l.Status().State; s != TapTempo {
		t.Fatalf("State = %s, taps must not leave tap-tempo", s)
	}

	r.l.HandleButton(button.LongPressRelease)
	if s := r.l.Status().State; s != Playing {
		t.Errorf("State = %s after hold release, want playing", s)
	}
}

func TestButtonsIgnoredWhileWaiting(t *testing.T) {
	r := newRig(t, false)
	r.tick()
	for _, ev := range []button.Event{button.Down, button.ShortPressRelease, button.VeryLongHoldRelease} {
		r.l.HandleButton(ev)
	}
	_, st, tracks := r.l.Snapshot()
	if st.State != Waiting || tracks[0].Hits() != 0 {
		t.Errorf("state %s hits %d, want waiting with no hits", st.State, tracks[0].Hits())
	}
}

func TestSwingDelaysOddSteps(t *testing.T) {
	r := newRig(t, true)
	r.tick() // step 0 played, generator swing updated at full intensity
	if off := r.l.SwingOffset(0); off != 0 {
		t.Errorf("SwingOffset(0) = %v, want 0", off)
	}
	off := r.l.SwingOffset(1)
	if off <= 0 || off > r.tempo.StepPeriod()/3 {
		t.Errorf("SwingOffset(1) = %v, want within (0, a third of a step]", off)
	}
}

func TestRestore(t *testing.T) {
	r := newRig(t, true)
	if r.l.Restore() {
		t.Error("Restore() = true with nothing stored")
	}
	var p storage.Pattern
	p[0], p[16] = true, true
	r.store.saved = []storage.Pattern{p, {}, {}, {}, {}}
	if !r.l.Restore() {
		t.Fatal("Restore() = false")
	}
	_, _, tracks := r.l.Snapshot()
	if tracks[0].Pattern != p {
		t.Error("pattern not restored")
	}
}

func TestExternalClockFallback(t *testing.T) {
	r := newRig(t, true)
	r.tempo.Start()
	defer r.tempo.Stop()

	// internal ticks for 900ms
	r.fake.Advance(900 * time.Millisecond)
	if s := r.l.Status().State; s != Playing {
		t.Fatalf("State = %s, want playing", s)
	}

	before := r.l.Status().CurrentStep

	// 24 pulses at 140 bpm
	interval := time.Minute / (140 * tempo.PulsesPerQuarter)
	for i := 0; i < tempo.PulsesPerQuarter; i++ {
		r.tempo.Pulse(r.fake.Now())
		r.fake.Advance(interval)
	}
	st := r.l.Status()
	if st.State != SyncPlaying || st.ClockSource != tempo.External {
		t.Fatalf("state %s source %s, want sync-playing on external", st.State, st.ClockSource)
	}
	if st.CurrentStep != before+4 {
		t.Errorf("CurrentStep = %d after 24 pulses, want %d", st.CurrentStep, before+4)
	}
	if st.BPM != 140 {
		t.Errorf("BPM = %d, want 140", st.BPM)
	}

	// silence until the watchdog at 2s notices
	r.fake.SetTime(epoch.Add(2*time.Second - time.Millisecond))
	r.fake.Advance(time.Millisecond)
	st = r.l.Status()
	if st.State != Waiting || st.ClockSource != tempo.Internal {
		t.Fatalf("state %s source %s, want waiting on internal", st.State, st.ClockSource)
	}
	if st.CurrentStep != 0 || st.GhostBarCounter != 0 || st.LFOPhase != 0 {
		t.Errorf("step %d bar %d lfo %d, want all zero", st.CurrentStep, st.GhostBarCounter, st.LFOPhase)
	}

	// the internal tick resumes
	r.fake.Advance(r.tempo.StepPeriod())
	if s := r.l.Status().State; s != Playing {
		t.Errorf("State = %s after fallback tick, want playing", s)
	}
}

func TestSyncButtons(t *testing.T) {
	r := newRig(t, true)
	r.l.ExternalStarted()
	if s := r.l.Status().State; s != SyncPlaying {
		t.Fatalf("State = %s, want sync-playing", s)
	}
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.LongPressRelease)
	if s := r.l.Status().State; s != SyncMute {
		t.Errorf("State = %s, want sync-mute", s)
	}
	r.l.HandleButton(button.LongHoldRelease)
	if s := r.l.Status().State; s != SyncPlaying {
		t.Errorf("State = %s, want sync-playing", s)
	}
	r.l.HandleButton(button.ShortPressRelease)
	if !r.l.ghost.FillPending() {
		t.Error("click did not request a fill")
	}
}

func TestExternalStartDuringTapTempoMutes(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.LongHoldRelease)
	r.l.ExternalStarted()
	if s := r.l.Status().State; s != SyncMute {
		t.Errorf("State = %s, want sync-mute", s)
	}
}

func TestTransportStartRewinds(t *testing.T) {
	r := newRig(t, true)
	for i := 0; i < 5; i++ {
		r.tick()
	}
	r.l.TransportStart()
	st := r.l.Status()
	if st.CurrentStep != 0 || st.LFOPhase != 0 || st.GhostBarCounter != 0 {
		t.Errorf("step %d lfo %d bar %d, want zero", st.CurrentStep, st.LFOPhase, st.GhostBarCounter)
	}
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	last  Status
}

func (c *countingRenderer) Render(ready bool, st Status, tracks []Track) {
	c.mu.Lock()
	c.calls++
	c.last = st
	c.mu.Unlock()
}

func TestRenderOncePerTick(t *testing.T) {
	r := newRig(t, true)
	cr := &countingRenderer{}
	r.l.AddRenderer(cr)
	for i := 0; i < 3; i++ {
		r.tick()
	}
	if cr.calls != 3 {
		t.Errorf("Render calls = %d, want 3", cr.calls)
	}
	if cr.last.CurrentStep != 3 {
		t.Errorf("rendered step = %d, want 3", cr.last.CurrentStep)
	}
}

// steadyRig is playing with a four on the floor kick, one tick past the
// loop start
func steadyRig(t *testing.T) *rig {
	t.Helper()
	r := newRig(t, true)
	r.tick()
	r.l.mu.Lock()
	for _, s := range []int{0, 8, 16, 24} {
		r.l.tracks[0].Pattern[s] = true
	}
	r.l.mu.Unlock()
	return r
}

// untilLoopStart ticks until the cursor wraps to step 0
func (r *rig) untilLoopStart() Status {
	for {
		r.tick()
		if st := r.l.Status(); st.CurrentStep == 0 {
			return st
		}
	}
}

func hasFill(tracks []Track) bool {
	for _, tr := range tracks {
		for _, f := range tr.Fill {
			if f {
				return true
			}
		}
	}
	return false
}

func TestGhostCycleThroughTick(t *testing.T) {
	r := steadyRig(t)

	st := r.untilLoopStart()
	if st.GhostBarCounter != 2 {
		t.Fatalf("first loop start at bar counter %d, want the fill bar 2", st.GhostBarCounter)
	}
	_, _, tracks := r.l.Snapshot()
	if !hasFill(tracks) {
		t.Error("no fill flags on the fill loop")
	}

	st = r.untilLoopStart()
	if st.GhostBarCounter != 0 {
		t.Fatalf("second loop start at bar counter %d, want the creation bar 0", st.GhostBarCounter)
	}
	_, _, tracks = r.l.Snapshot()
	if hasFill(tracks) {
		t.Error("fill flags survive into the creation loop")
	}
	// the hit at 0 always gets a flam before it
	if !tracks[0].Ghost[TotalSteps-1].HasData() {
		t.Error("no ghost data created on the kick track")
	}

	r.notes.take()
	r.untilLoopStart()
	bass := tracks[0]
	ghosts := 0
	for _, n := range r.notes.take() {
		if n.ch == bass.Channel && n.key == bass.Note && n.vel == ghost.Velocity(0) {
			ghosts++
		}
	}
	if ghosts == 0 {
		t.Error("no ghost velocity notes scheduled on the kick track")
	}
}

func TestNoScheduledFillWhileTapping(t *testing.T) {
	r := steadyRig(t)
	r.l.HandleButton(button.LongHoldRelease)
	if s := r.l.Status().State; s != TapTempo {
		t.Fatalf("State = %s, want tap-tempo", s)
	}

	st := r.untilLoopStart()
	if st.GhostBarCounter != 2 {
		t.Fatalf("bar counter = %d, want 2", st.GhostBarCounter)
	}
	if _, _, tracks := r.l.Snapshot(); hasFill(tracks) {
		t.Error("fill generated on the fill bar while in tap tempo")
	}
}

func TestSameSeedSameGhosts(t *testing.T) {
	play := func() [][TotalSteps]ghost.Note {
		r := steadyRig(t)
		for range 4 {
			r.untilLoopStart()
		}
		_, _, tracks := r.l.Snapshot()
		var out [][TotalSteps]ghost.Note
		for _, tr := range tracks {
			out = append(out, tr.Ghost)
		}
		return out
	}
	a, b := play(), play()
	if a[0] == ([TotalSteps]ghost.Note{}) {
		t.Fatal("kick track has no ghost data after four loops")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("track %d ghosts differ between runs with the same seed", i)
		}
	}
}
