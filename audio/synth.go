// Package audio plays looper notes on the local sound card, either through a
// SoundFont or with built-in synthetic drum voices.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/sinshu/go-meltysynth/meltysynth"

	"ghost-looper/debug"
)

// SampleRate is the output rate for both voice kinds
const SampleRate = beep.SampleRate(44100)

// ErrSoundFontNotFound is returned when the configured .sf2 is missing
var ErrSoundFontNotFound = errors.New("soundfont not found")

// Synth is a note output that renders to the speaker. It satisfies
// midi.Output.
type Synth struct {
	mu      sync.Mutex
	mixer   *beep.Mixer
	sf      *meltysynth.Synthesizer
	started bool
}

// NewSynth creates a synth. With an empty soundFont path the built-in
// voices are used.
func NewSynth(soundFont string) (*Synth, error) {
	s := &Synth{mixer: &beep.Mixer{}}
	if soundFont == "" {
		return s, nil
	}
	sf, err := LoadSoundFont(soundFont)
	if err != nil {
		return nil, err
	}
	synth, err := meltysynth.NewSynthesizer(sf, meltysynth.NewSynthesizerSettings(int32(SampleRate)))
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	s.sf = synth
	s.mixer.Add(&sfStream{s: s})
	return s, nil
}

// LoadSoundFont reads and parses an .sf2 file
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("read soundfont: %w", err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse soundfont: %w", err)
	}
	return sf, nil
}

// Start opens the speaker and begins playback of the mixer
func (s *Synth) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := speaker.Init(SampleRate, SampleRate.N(20*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(s.mixer)
	s.started = true
	debug.Log("audio", "speaker started (soundfont=%v)", s.sf != nil)
	return nil
}

// Ready reports whether the speaker is running
func (s *Synth) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// SendNote plays a note immediately. Drum voices decay on their own, so
// there is no note-off.
func (s *Synth) SendNote(ch, note, vel uint8) {
	if vel == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sf != nil {
		s.sf.NoteOn(int32(ch), int32(note), int32(vel))
		return
	}
	if s.started {
		speaker.Lock()
		defer speaker.Unlock()
	}
	s.mixer.Add(NewHit(note, vel, SampleRate))
}

// Stream renders directly from the mixer, for offline use and tests
func (s *Synth) Stream(samples [][2]float64) (int, bool) {
	return s.mixer.Stream(samples)
}

// Close stops playback and releases the speaker
func (s *Synth) Close() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	// the speaker goroutine may be waiting on mu inside sfStream
	if started {
		speaker.Clear()
		speaker.Close()
	}
}

// sfStream pulls samples out of the SoundFont synthesizer
type sfStream struct {
	s           *Synth
	left, right []float32
}

func (st *sfStream) Stream(samples [][2]float64) (int, bool) {
	if cap(st.left) < len(samples) {
		st.left = make([]float32, len(samples))
		st.right = make([]float32, len(samples))
	}
	left, right := st.left[:len(samples)], st.right[:len(samples)]

	st.s.mu.Lock()
	st.s.sf.Render(left, right)
	st.s.mu.Unlock()

	for i := range samples {
		samples[i][0] = float64(left[i])
		samples[i][1] = float64(right[i])
	}
	return len(samples), true
}

func (st *sfStream) Err() error { return nil }
