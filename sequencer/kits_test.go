package sequencer

import (
	"testing"

	"ghost-looper/button"
)

func TestGetKit(t *testing.T) {
	for _, name := range KitNames() {
		if _, ok := Kits[name]; !ok {
			t.Errorf("KitNames lists %q but Kits has no entry", name)
		}
	}
	if k := GetKit("nope"); k.Name != "General MIDI" {
		t.Errorf("GetKit(unknown) = %s, want General MIDI", k.Name)
	}
	if k := GetKit("rd8"); k.Snare != 40 {
		t.Errorf("rd8 snare = %d, want 40", k.Snare)
	}
}

func TestSetKitRemapsNotesAndCues(t *testing.T) {
	r := newRig(t, true)
	r.tick()
	r.l.HandleButton(button.Down)
	r.l.HandleButton(button.ShortPressRelease)

	r.l.SetKit(GetKit("rd8"))
	_, _, tracks := r.l.Snapshot()
	if tracks[1].Note != 40 || !tracks[0].Pattern[0] {
		t.Errorf("tracks after SetKit = %+v", tracks[:2])
	}

	r.l.SetKit(GetKit("er1"))

	r.notes.take()
	for i := 0; i < ClickDiv; i++ {
		r.tick()
	}
	if !r.notes.has(40) || r.notes.has(NoteRimShot) {
		t.Error("metronome did not move to the kit's click note")
	}
}
