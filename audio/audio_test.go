package audio

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

// drain streams s to the end and returns the samples and peak level
func drain(t *testing.T, s interface {
	Stream([][2]float64) (int, bool)
}, limit int) (int, float64) {
	t.Helper()
	buf := make([][2]float64, 512)
	total, peak := 0, 0.0
	for total < limit {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			peak = math.Max(peak, math.Abs(smp[0]))
			if smp[0] != smp[1] {
				t.Fatalf("channels differ at sample %d", total)
			}
		}
		total += n
		if !ok {
			break
		}
	}
	return total, peak
}

func TestHitIsFiniteAndBounded(t *testing.T) {
	tests := []struct {
		name string
		note uint8
	}{
		{"kick", 36},
		{"rim", 37},
		{"snare", 38},
		{"clap", 39},
		{"closed hat", 42},
		{"open hat", 46},
		{"cymbal", 49},
		{"unmapped", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := int(SampleRate) * 10
			n, peak := drain(t, NewHit(tt.note, 127, SampleRate), limit)
			if n == 0 || n >= limit {
				t.Errorf("streamed %d samples, want a finite sound", n)
			}
			if peak == 0 || peak > 1 {
				t.Errorf("peak = %v, want within (0, 1]", peak)
			}
		})
	}
}

func TestHitVelocityScales(t *testing.T) {
	_, loud := drain(t, NewHit(36, 127, SampleRate), 1<<20)
	_, soft := drain(t, NewHit(36, 5, SampleRate), 1<<20)
	if soft >= loud {
		t.Errorf("soft peak %v >= loud peak %v", soft, loud)
	}
}

func TestClosedHatShorterThanCymbal(t *testing.T) {
	hat, _ := drain(t, NewHit(42, 100, SampleRate), 1<<22)
	cym, _ := drain(t, NewHit(49, 100, SampleRate), 1<<22)
	if hat >= cym {
		t.Errorf("hat %d samples, cymbal %d", hat, cym)
	}
}

func TestSynthBuiltinVoices(t *testing.T) {
	s, err := NewSynth("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Ready() {
		t.Error("Ready() before Start")
	}

	buf := make([][2]float64, 256)
	s.Stream(buf)
	for _, smp := range buf {
		if smp[0] != 0 {
			t.Fatal("idle synth is not silent")
		}
	}

	s.SendNote(9, 38, 100)
	s.SendNote(9, 42, 0) // zero velocity is ignored
	_, peak := drain(t, s, 4096)
	if peak == 0 {
		t.Error("no sound after SendNote")
	}
	s.Close()
}

func TestNewSynthMissingSoundFont(t *testing.T) {
	_, err := NewSynth(filepath.Join(t.TempDir(), "none.sf2"))
	if !errors.Is(err, ErrSoundFontNotFound) {
		t.Errorf("NewSynth() error = %v, want ErrSoundFontNotFound", err)
	}
}
