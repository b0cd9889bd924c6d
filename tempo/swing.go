package tempo

import (
	"math"
	"time"
)

const (
	MinSwing = 0.5
	MaxSwing = 0.65

	swingDepth = 0.15
	swingLFO   = 0.01
)

// LFO maps a wrapping 16-bit phase onto one sine period
func LFO(phase uint16) float64 {
	return math.Sin(2 * math.Pi * float64(phase) / 65536)
}

// ModulateSwing derives the swing ratio from ghost intensity and LFO phase.
// Below intensity 0.5 the groove is straight. The result is in [MinSwing, MaxSwing].
func ModulateSwing(intensity float64, lfoPhase uint16) float64 {
	if intensity < 0.5 {
		return MinSwing
	}
	base := MinSwing + math.Pow(2*(intensity-0.5), 7)*swingDepth
	return ClampSwing(base + swingLFO*LFO(lfoPhase))
}

// ClampSwing limits a swing ratio to [MinSwing, MaxSwing]
func ClampSwing(r float64) float64 {
	return math.Min(math.Max(r, MinSwing), MaxSwing)
}

// SwingOffset is the delay applied to step. Even steps sit on the grid,
// odd steps are pushed back by pair length * (ratio - 0.5).
func SwingOffset(step int, period time.Duration, ratio float64) time.Duration {
	if step%2 == 0 {
		return 0
	}
	pair := 2 * float64(period)
	return time.Duration(pair * (ClampSwing(ratio) - MinSwing))
}
