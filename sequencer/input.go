package sequencer

import (
	"ghost-looper/button"
	"ghost-looper/debug"
	"ghost-looper/taptempo"
)

// HandleButton applies one classified button event. Called from the main
// loop.
func (l *Looper) HandleButton(ev button.Event) {
	if ev == button.None {
		return
	}
	now := l.clock.Now()

	l.mu.Lock()
	s := &l.status
	from := s.State
	erase := false

	switch {
	case s.State == Waiting:
		// nothing to record against until the loop runs

	case s.State == TapTempo:
		switch l.taps.HandleEvent(ev) {
		case taptempo.Preliminary, taptempo.Final:
			s.BPM = l.tempo.SetBPM(l.taps.BPM())
		case taptempo.Exit:
			s.State = Playing
		}

	case s.State.Synced():
		if ev == button.ShortPressRelease {
			l.ghost.RequestFill()
		}

	default:
		switch ev {
		case button.Down:
			s.ButtonPressStart = now
			t := &l.tracks[s.CurrentTrack]
			l.sched.Schedule(now, t.Channel, t.Note, FullVelocity)
			t.Hold = t.Pattern

		case button.ShortPressRelease:
			t := &l.tracks[s.CurrentTrack]
			if s.State != Recording {
				s.RecordingStepCount = 0
				t.Clear()
				erase = true
			}
			t.Pattern[l.quantizeLocked()] = true

		case button.LongPressRelease:
			t := &l.tracks[s.CurrentTrack]
			t.Pattern = t.Hold

		case button.LongHoldRelease:
			l.taps.Reset()
			l.sched.Schedule(now, DrumChannel, l.kit.OpenHiHat, FullVelocity)

		case button.VeryLongHoldRelease:
			l.sched.Schedule(now, DrumChannel, l.kit.Cymbal, FullVelocity)
		}
	}

	if next, ok := s.State.Next(ev); ok && s.State == from {
		s.State = next
	}
	to := s.State
	l.mu.Unlock()

	if erase {
		l.erase()
	}
	if from != to {
		debug.Log("looper", "%s: %s -> %s", ev, from, to)
	}
}
