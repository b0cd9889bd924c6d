package sequencer

import "ghost-looper/ghost"

// Track is one drum voice: a fixed note with its recorded pattern and the
// generated ghost and fill data.
type Track struct {
	Name    string `json:"name"`
	Note    uint8  `json:"note"`
	Channel uint8  `json:"channel"` // 0-based
	ghost.Lane

	// Pattern copy taken on button-down, restored on hold release
	Hold [TotalSteps]bool `json:"-"`
}

// NewTrack creates an empty track
func NewTrack(name string, note, channel uint8) Track {
	return Track{Name: name, Note: note, Channel: channel}
}

// DefaultTracks is the GM kit: bass, snare, hi-hat and hand clap on the
// drum channel
func DefaultTracks() []Track {
	return GetKit(DefaultKit).Tracks()
}

// Clear zeroes the pattern and all generated data
func (t *Track) Clear() {
	t.Pattern = [TotalSteps]bool{}
	t.ClearGhosts()
}

// GhostAt reports whether step sounds a ghost note at the given intensity
func (t *Track) GhostAt(step int, intensity float64) bool {
	return t.Ghost[step].Active(intensity)
}
