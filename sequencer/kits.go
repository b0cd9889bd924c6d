package sequencer

// Kit maps the looper voices to the notes a drum machine expects
type Kit struct {
	Name      string
	Bass      uint8
	Snare     uint8
	HiHat     uint8
	Clap      uint8
	OpenHiHat uint8 // track switch and tap tempo cue
	Cymbal    uint8 // clear cue
	RimShot   uint8 // metronome
}

// Kits contains all available drum kit mappings
var Kits = map[string]Kit{
	"gm": {
		Name:      "General MIDI",
		Bass:      NoteBassDrum,
		Snare:     NoteSnare,
		HiHat:     NoteHiHat,
		Clap:      NoteHandClap,
		OpenHiHat: NoteOpenHiHat,
		Cymbal:    NoteCymbal,
		RimShot:   NoteRimShot,
	},
	"rd8": {
		Name:      "Behringer RD-8",
		Bass:      36,
		Snare:     40, // RD-8 uses 40, not 38
		HiHat:     42,
		Clap:      39,
		OpenHiHat: 46,
		Cymbal:    49,
		RimShot:   37,
	},
	"tr8s": {
		Name:      "Roland TR-8S",
		Bass:      36,
		Snare:     38,
		HiHat:     42,
		Clap:      39,
		OpenHiHat: 46,
		Cymbal:    49,
		RimShot:   37,
	},
	"er1": {
		Name:      "Korg ER-1",
		Bass:      36, // Perc Synth 1
		Snare:     38, // Perc Synth 2
		HiHat:     42,
		Clap:      39,
		OpenHiHat: 46,
		Cymbal:    49,
		RimShot:   40, // Perc Synth 3, no rim shot on the ER-1
	},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// KitNames returns the list of available kit names
func KitNames() []string {
	return []string{"gm", "rd8", "tr8s", "er1"}
}

// GetKit returns a kit by name, defaulting to GM if not found
func GetKit(name string) Kit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// Tracks builds the four looper tracks for the kit
func (k Kit) Tracks() []Track {
	return []Track{
		NewTrack("Bass", k.Bass, DrumChannel),
		NewTrack("Snare", k.Snare, DrumChannel),
		NewTrack("Hi-hat", k.HiHat, DrumChannel),
		NewTrack("Hand clap", k.Clap, DrumChannel),
	}
}
