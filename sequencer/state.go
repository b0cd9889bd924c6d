package sequencer

import (
	"time"

	"ghost-looper/button"
	"ghost-looper/ghost"
	"ghost-looper/tempo"
)

const (
	TotalSteps = ghost.TotalSteps
	ClickDiv   = ghost.StepsPerBar / ghost.BeatsPerBar // steps per beat
	LFORate    = 64
)

// Fixed notes and channels
const (
	ClickChannel = 0
	DrumChannel  = 9

	NoteBassDrum  = 36
	NoteRimShot   = 37
	NoteSnare     = 38
	NoteHandClap  = 39
	NoteHiHat     = 42
	NoteOpenHiHat = 46
	NoteCymbal    = 49

	FullVelocity   = 0x7f
	AccentVelocity = 0x20
	ClickVelocity  = 0x05
)

// State is the looper mode
type State int

const (
	Waiting State = iota
	Playing
	Recording
	TrackSwitch
	TapTempo
	ClearTracks
	SyncPlaying
	SyncMute
)

var stateNames = [...]string{
	Waiting:     "waiting",
	Playing:     "playing",
	Recording:   "recording",
	TrackSwitch: "track-switch",
	TapTempo:    "tap-tempo",
	ClearTracks: "clear-tracks",
	SyncPlaying: "sync-playing",
	SyncMute:    "sync-mute",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Synced reports whether the state belongs to external clock operation
func (s State) Synced() bool {
	return s == SyncPlaying || s == SyncMute
}

// Status is the looper's mutable state. Copies handed out by Snapshot are
// detached from the looper.
type Status struct {
	State              State         `json:"state"`
	CurrentStep        int           `json:"currentStep"`
	CurrentTrack       int           `json:"currentTrack"`
	BPM                uint32        `json:"bpm"`
	StepPeriod         time.Duration `json:"stepPeriod"`
	ClockSource        tempo.Source  `json:"clockSource"`
	GhostBarCounter    int           `json:"ghostBarCounter"`
	LFOPhase           uint16        `json:"lfoPhase"`
	RecordingStepCount int           `json:"recordingStepCount"`
	LastStepTime       time.Time     `json:"lastStepTime"`
	ButtonPressStart   time.Time     `json:"buttonPressStart"`
	Indicator          bool          `json:"indicator"`
	SwingRatio         float64       `json:"swingRatio"`
	Intensity          float64       `json:"intensity"`
}

// armed is where button events lead from any state that accepts the full
// gesture set under the internal clock
var armed = map[button.Event]State{
	button.ShortPressRelease:   Recording,
	button.LongPressRelease:    TrackSwitch,
	button.LongHoldRelease:     TapTempo,
	button.VeryLongHoldRelease: ClearTracks,
}

// transitions maps (state, button event) to the next state. States missing
// here ignore buttons (Waiting) or delegate them (TapTempo).
var transitions = map[State]map[button.Event]State{
	Playing:     armed,
	Recording:   armed,
	TrackSwitch: armed,
	ClearTracks: armed,
	SyncPlaying: {
		button.LongPressRelease:    SyncMute,
		button.LongHoldRelease:     SyncMute,
		button.VeryLongHoldRelease: SyncMute,
	},
	SyncMute: {
		button.LongPressRelease:    SyncPlaying,
		button.LongHoldRelease:     SyncPlaying,
		button.VeryLongHoldRelease: SyncPlaying,
	},
}

// Next looks up the state a button event leads to
func (s State) Next(ev button.Event) (State, bool) {
	next, ok := transitions[s][ev]
	return next, ok
}
