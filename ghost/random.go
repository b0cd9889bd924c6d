package ghost

import (
	"math"
	"math/rand/v2"
)

// Rand is the generator's seeded randomness. The same seed always yields
// the same sequence of ghost notes and fills.
type Rand struct {
	r        *rand.Rand
	spare    float64
	hasSpare bool
}

// NewRand returns a PCG source seeded from seed
func NewRand(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample returns a uniform integer in [0, 100)
func (r *Rand) Sample() uint8 {
	return uint8(r.r.IntN(100))
}

// IntN returns a uniform integer in [0, n). n must be > 0.
func (r *Rand) IntN(n int) int {
	return r.r.IntN(n)
}

// Float64 returns a uniform float in [0, 1)
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// Chance reports true with probability p
func (r *Rand) Chance(p float64) bool {
	return r.r.Float64() < p
}

// StandardNormal draws N(0,1) with the polar Box-Muller method. Each
// accepted pair yields two samples; the second is kept for the next call.
func (r *Rand) StandardNormal() float64 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}
	var u, v, s float64
	for {
		u = r.r.Float64()*2 - 1
		v = r.r.Float64()*2 - 1
		s = u*u + v*v
		if s > 0 && s < 1 {
			break
		}
	}
	m := math.Sqrt(-2 * math.Log(s) / s)
	r.spare = v * m
	r.hasSpare = true
	return u * m
}

// Normal draws from N(mean, sd^2)
func (r *Rand) Normal(mean, sd float64) float64 {
	return mean + sd*r.StandardNormal()
}
