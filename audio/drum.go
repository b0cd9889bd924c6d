package audio

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/gopxl/beep"
)

// voice shapes a synthetic drum sound: a pitched sine sweeping from freq to
// endFreq mixed with white noise, under an exponential decay
type voice struct {
	freq    float64
	endFreq float64
	tone    float64 // sine level
	noise   float64 // noise level
	decay   time.Duration
	bright  bool // first-difference the noise for a hiss
}

var voices = map[uint8]voice{
	35: {freq: 140, endFreq: 45, tone: 1, decay: 180 * time.Millisecond},
	36: {freq: 150, endFreq: 50, tone: 1, decay: 160 * time.Millisecond},
	37: {freq: 900, endFreq: 700, tone: 0.6, noise: 0.3, decay: 25 * time.Millisecond},
	38: {freq: 190, endFreq: 160, tone: 0.5, noise: 0.7, decay: 120 * time.Millisecond},
	39: {tone: 0, noise: 0.9, decay: 90 * time.Millisecond},
	42: {noise: 0.6, decay: 40 * time.Millisecond, bright: true},
	46: {noise: 0.6, decay: 220 * time.Millisecond, bright: true},
	49: {noise: 0.5, decay: 900 * time.Millisecond, bright: true},
}

// fallback for notes without a voice: a short blip at the note's pitch
func pitched(note uint8) voice {
	f := 440 * math.Pow(2, (float64(note)-69)/12)
	return voice{freq: f, endFreq: f, tone: 0.8, decay: 80 * time.Millisecond}
}

// hit streams one drum sound and then ends
type hit struct {
	v     voice
	rate  beep.SampleRate
	gain  float64
	pos   int
	total int
	phase float64
	prev  float64
	rng   *rand.Rand
}

// NewHit returns a finite streamer for note at velocity
func NewHit(note, velocity uint8, rate beep.SampleRate) beep.Streamer {
	v, ok := voices[note]
	if !ok {
		v = pitched(note)
	}
	return &hit{
		v:     v,
		rate:  rate,
		gain:  0.5 * float64(velocity) / 127,
		total: rate.N(v.decay * 5),
		rng:   rand.New(rand.NewPCG(uint64(note), uint64(velocity))),
	}
}

func (h *hit) Stream(samples [][2]float64) (n int, ok bool) {
	if h.pos >= h.total {
		return 0, false
	}
	tau := h.v.decay.Seconds() * float64(h.rate)
	sweep := tau / 2
	for i := range samples {
		if h.pos >= h.total {
			return i, true
		}
		env := math.Exp(-float64(h.pos) / tau)
		freq := h.v.endFreq + (h.v.freq-h.v.endFreq)*math.Exp(-float64(h.pos)/sweep)

		n := h.rng.Float64()*2 - 1
		if h.v.bright {
			n, h.prev = (n-h.prev)/2, n
		}
		val := h.gain * env * (h.v.tone*math.Sin(2*math.Pi*h.phase) + h.v.noise*n)

		samples[i][0] = val
		samples[i][1] = val

		h.phase += freq / float64(h.rate)
		h.phase -= math.Floor(h.phase)
		h.pos++
	}
	return len(samples), true
}

func (h *hit) Err() error { return nil }
