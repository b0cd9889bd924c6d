// Package ghost embellishes recorded drum patterns with probabilistic ghost
// notes (euclidean spreads and flams around hits) and periodic fills.
package ghost

import (
	"math"
	"sync/atomic"

	"ghost-looper/debug"
	"ghost-looper/tempo"
)

// Note is per-step ghost data, both fields in 0..100. A zero probability
// means the step carries no ghost data.
type Note struct {
	Probability uint8 `json:"probability"`
	Sample      uint8 `json:"sample"`
}

// HasData reports whether the step was given ghost data
func (n Note) HasData() bool {
	return n.Probability > 0
}

// Active reports whether the ghost note sounds at the given intensity
func (n Note) Active(intensity float64) bool {
	return float64(n.Probability)/100*intensity > float64(n.Sample)/100
}

// Lane is the per-track data the generator reads and rewrites
type Lane struct {
	Pattern [TotalSteps]bool `json:"pattern"`
	Ghost   [TotalSteps]Note `json:"-"`
	Fill    [TotalSteps]bool `json:"-"`
}

// Hits counts the user hits in the pattern
func (l *Lane) Hits() int {
	n := 0
	for _, on := range l.Pattern {
		if on {
			n++
		}
	}
	return n
}

// ClearGhosts drops all ghost data and fill flags
func (l *Lane) ClearGhosts() {
	l.Ghost = [TotalSteps]Note{}
	l.Fill = [TotalSteps]bool{}
}

// Cursor is the slice of sequencer status the maintenance step works on
type Cursor struct {
	Step       int
	BarCounter int
	LFOPhase   uint16
	Playing    bool
}

// Generator is not safe for concurrent use, except RequestFill.
// The owning sequencer serializes all other calls.
type Generator struct {
	params      Parameters
	rng         *Rand
	pendingFill atomic.Bool
}

// New creates a generator with sanitized params and a seeded source
func New(params Parameters, seed uint64) *Generator {
	params.Sanitize()
	return &Generator{params: params, rng: NewRand(seed)}
}

// Parameters returns a copy of the current parameters
func (g *Generator) Parameters() Parameters {
	return g.params
}

// Intensity is shorthand for Parameters().Intensity
func (g *Generator) Intensity() float64 {
	return g.params.Intensity
}

// SwingRatio is the ratio computed by the last maintenance step
func (g *Generator) SwingRatio() float64 {
	return g.params.SwingRatio
}

// SetIntensity changes the ghost intensity (clamped to [0,1])
func (g *Generator) SetIntensity(x float64) {
	g.params.Intensity = clampFloat(x, 0, 1)
}

// RequestFill asks for a fill starting at the current step on the next
// maintenance step. Safe to call from any goroutine.
func (g *Generator) RequestFill() {
	g.pendingFill.Store(true)
}

// FillPending reports whether an on-demand fill is outstanding
func (g *Generator) FillPending() bool {
	return g.pendingFill.Load()
}

// Create regenerates a lane's ghost data from its pattern
func (g *Generator) Create(l *Lane) {
	l.Ghost = [TotalSteps]Note{}
	g.addEuclidean(l)
	g.addFlams(l)
}

// TargetDensity is the number of euclidean onsets for a pattern with n
// hits, or 0 when the pattern is empty or full.
func TargetDensity(n int, e Euclidean) int {
	if n <= 0 || n >= TotalSteps {
		return 0
	}
	extra := 0
	if n < e.KSufficient {
		ratio := float64(e.KSufficient-n) / float64(e.KSufficient)
		extra = int(math.Ceil(ratio * e.KIntensity * float64(e.KMax-n)))
	}
	return clampInt(n+extra, 1, e.KMax)
}

// EuclideanPositions spreads k onsets over TotalSteps with a Bresenham
// accumulator, rotated by phase.
func EuclideanPositions(k, phase int) []int {
	if k <= 0 {
		return nil
	}
	positions := make([]int, 0, k)
	bucket := 0
	for i := 0; i < TotalSteps; i++ {
		bucket += k
		if bucket >= TotalSteps {
			bucket -= TotalSteps
			positions = append(positions, (i+phase)%TotalSteps)
		}
	}
	return positions
}

func (g *Generator) addEuclidean(l *Lane) {
	e := g.params.Euclidean
	k := TargetDensity(l.Hits(), e)
	if k == 0 {
		return
	}

	phase := g.rng.IntN(TotalSteps / k)
	density := float64(k) / TotalSteps
	prob := percent(e.Probability * (1 - density))
	if prob == 0 {
		return
	}

	for _, pos := range EuclideanPositions(k, phase) {
		if l.Pattern[pos] || l.Ghost[pos].HasData() {
			continue
		}
		l.Ghost[pos] = Note{Probability: prob, Sample: g.rng.Sample()}
	}
}

func (g *Generator) addFlams(l *Lane) {
	f := g.params.Flams
	before, after := percent(f.BeforeProbability), percent(f.AfterProbability)

	for i, hit := range l.Pattern {
		if !hit {
			continue
		}
		prev := (i + TotalSteps - 1) % TotalSteps
		next := (i + 1) % TotalSteps
		if !l.Pattern[prev] && !l.Ghost[prev].HasData() && before > 0 {
			l.Ghost[prev] = Note{Probability: before, Sample: g.rng.Sample()}
		}
		if !l.Pattern[next] && !l.Ghost[next].HasData() && after > 0 {
			l.Ghost[next] = Note{Probability: after, Sample: g.rng.Sample()}
		}
	}
}

// windowDensity is the share of hits within ±densityWindow steps of step
func windowDensity(l *Lane, step int) float64 {
	n := 0
	for i := -densityWindow; i <= densityWindow; i++ {
		if l.Pattern[(step+i+TotalSteps)%TotalSteps] {
			n++
		}
	}
	return float64(n) / float64(2*densityWindow+1)
}

// FillStart draws the first step of a scheduled fill
func (g *Generator) FillStart() int {
	f := g.params.Fill
	start := TotalSteps - int(math.Abs(g.rng.Normal(f.StartMean, f.StartSD)))
	return clampInt(start, 0, TotalSteps-1)
}

// AddFill layers fill flags onto lanes from start to the end of the loop.
// The lead tracks get extra ghost data where their pattern is sparse.
func (g *Generator) AddFill(lanes []*Lane, start int) {
	start = clampInt(start, 0, TotalSteps-1)
	intensity := g.params.Intensity

	for t, l := range lanes {
		var density [TotalSteps]float64
		for i := range density {
			density[i] = windowDensity(l, i)
		}
		for i := start; i < TotalSteps; i++ {
			if t < leadTracks && !l.Pattern[i] && !l.Ghost[i].HasData() {
				if p := percent((1 - density[i]) * FillBoost); p > 0 {
					l.Ghost[i] = Note{Probability: p, Sample: g.rng.Sample()}
				}
			}
			if l.Ghost[i].Active(intensity) {
				l.Fill[i] = g.rng.Chance(g.params.Fill.Probability * intensity)
			}
		}
	}
	debug.Debugf("ghost", "fill from step %d", start)
}

// Maintain runs once per tick, after the step advanced: bar counting,
// ghost regeneration, fills and swing. The counter is bumped at every bar
// start before it is checked, so with the default interval of 4 a loop
// starts alternately on the creation bar (0) and the fill bar (2).
func (g *Generator) Maintain(c *Cursor, lanes []*Lane) {
	interval := max(g.params.Fill.IntervalBar, 1)

	if c.Step%StepsPerBar == 0 {
		c.BarCounter = (c.BarCounter + 1) % interval
	}
	if c.Step == 0 {
		for _, l := range lanes {
			l.Fill = [TotalSteps]bool{}
		}
		switch {
		case c.BarCounter == 0:
			for _, l := range lanes {
				g.Create(l)
			}
		case c.BarCounter == (interval-2+interval)%interval && c.Playing && anyHits(lanes):
			g.AddFill(lanes, g.FillStart())
		}
	}

	if g.pendingFill.Swap(false) && anyHits(lanes) {
		g.AddFill(lanes, c.Step)
	}

	g.params.SwingRatio = tempo.ModulateSwing(g.params.Intensity, c.LFOPhase)
}

func anyHits(lanes []*Lane) bool {
	for _, l := range lanes {
		if l.Hits() > 0 {
			return true
		}
	}
	return false
}

func percent(p float64) uint8 {
	return uint8(clampInt(int(math.Round(p*100)), 0, 100))
}
