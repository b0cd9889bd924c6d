package ghost

import "ghost-looper/tempo"

// Pattern geometry: a two bar loop of sixteenth notes
const (
	Bars        = 2
	BeatsPerBar = 4
	StepsPerBar = BeatsPerBar * tempo.StepsPerBeat
	TotalSteps  = Bars * StepsPerBar
)

// FillBoost scales the extra ghost probability given to sparse regions of
// the two lead tracks during a fill.
const FillBoost = 0.25

// densityWindow is the half width of the note density window used by fills
const densityWindow = 8

// leadTracks is how many tracks (from index 0) receive the fill boost
const leadTracks = 2

type Euclidean struct {
	KMax        int     `json:"kMax"`
	KSufficient int     `json:"kSufficient"`
	KIntensity  float64 `json:"kIntensity"`
	Probability float64 `json:"probability"`
}

type Flams struct {
	BeforeProbability float64 `json:"beforeProbability"`
	AfterProbability  float64 `json:"afterProbability"`
}

type Fill struct {
	IntervalBar int     `json:"intervalBar"`
	StartMean   float64 `json:"startMean"`
	StartSD     float64 `json:"startSD"`
	Probability float64 `json:"probability"`
}

// Parameters tunes the generator. SwingRatio is recomputed every tick from
// Intensity and the LFO, so a configured value only matters until then.
type Parameters struct {
	Intensity  float64   `json:"intensity"`
	SwingRatio float64   `json:"swingRatio"`
	Euclidean  Euclidean `json:"euclidean"`
	Flams      Flams     `json:"flams"`
	Fill       Fill      `json:"fill"`
}

// DefaultParameters returns the stock groove settings
func DefaultParameters() Parameters {
	return Parameters{
		Intensity:  1.0,
		SwingRatio: tempo.MinSwing,
		Euclidean: Euclidean{
			KMax:        16,
			KSufficient: 6,
			KIntensity:  0.60,
			Probability: 0.70,
		},
		Flams: Flams{
			BeforeProbability: 0.50,
			AfterProbability:  0.10,
		},
		Fill: Fill{
			IntervalBar: 4,
			StartMean:   15,
			StartSD:     5,
			Probability: 0.75,
		},
	}
}

// Sanitize clamps out-of-range values in place
func (p *Parameters) Sanitize() {
	p.Intensity = clampFloat(p.Intensity, 0, 1)
	p.SwingRatio = tempo.ClampSwing(p.SwingRatio)
	p.Euclidean.KMax = clampInt(p.Euclidean.KMax, 1, TotalSteps)
	p.Euclidean.KSufficient = clampInt(p.Euclidean.KSufficient, 0, TotalSteps)
	p.Euclidean.KIntensity = clampFloat(p.Euclidean.KIntensity, 0, 1)
	p.Euclidean.Probability = clampFloat(p.Euclidean.Probability, 0, 1)
	p.Flams.BeforeProbability = clampFloat(p.Flams.BeforeProbability, 0, 1)
	p.Flams.AfterProbability = clampFloat(p.Flams.AfterProbability, 0, 1)
	if p.Fill.IntervalBar < 1 {
		p.Fill.IntervalBar = 1
	}
	if p.Fill.StartSD < 0 {
		p.Fill.StartSD = -p.Fill.StartSD
	}
	p.Fill.Probability = clampFloat(p.Fill.Probability, 0, 1)
}

func clampFloat(x, lo, hi float64) float64 {
	return min(max(x, lo), hi)
}

func clampInt(x, lo, hi int) int {
	return min(max(x, lo), hi)
}

// velocityTable holds the ghost velocity per track (kick, snare, hat, clap)
var velocityTable = [...]uint8{0x20, 0x25, 0x30, 0x25}

// Velocity returns the ghost note velocity for a track
func Velocity(track int) uint8 {
	if track < 0 || track >= len(velocityTable) {
		return velocityTable[0]
	}
	return velocityTable[track]
}

// velocityDepth is how far the LFO may pull a hit below its base velocity
const velocityDepth = 0.12

// ModulateVelocity shapes a user hit's velocity with the LFO. Each track
// sits a quarter period apart so the kit breathes rather than pumps.
func ModulateVelocity(track int, base uint8, lfoPhase uint16) uint8 {
	phase := lfoPhase + uint16(track)*16384
	dip := velocityDepth * (0.5 + 0.5*tempo.LFO(phase))
	v := float64(base) * (1 - dip)
	return uint8(clampInt(int(v+0.5), 1, 127))
}
