package sim

import (
	"github.com/ojrac/opensimplex-go"
)

// Drift produces the slow-moving background factors fed into external
// migration. Each factor is a signed fraction of a POI's population per
// day; smooth noise keeps day-to-day values continuous instead of jumpy.
type Drift struct {
	noise opensimplex.Noise
}

// NewDrift creates a drift source from a seed. The same seed reproduces
// the same world mood.
func NewDrift(seed int64) *Drift {
	return &Drift{noise: opensimplex.NewNormalized(seed)}
}

// daysPerYear for the seasonal cycle.
const daysPerYear = 360

// SeasonalFactor swings through the year between -0.01 (deep winter, people
// leave) and +0.01 (high summer).
func (d *Drift) SeasonalFactor(day int) float64 {
	phase := float64(day%daysPerYear) / daysPerYear
	// Noise sampled along a slow axis keeps consecutive years from
	// repeating exactly.
	n := d.noise.Eval2(phase*4, float64(day/daysPerYear)*0.1)
	return -0.01 + n*0.02
}

// GrowthFactor is the long-run population mood, between -0.005 and +0.01.
func (d *Drift) GrowthFactor(day int) float64 {
	n := d.noise.Eval2(float64(day)*0.002, 100)
	return -0.005 + n*0.015
}

// EventFactor models transient pressure from off-map events, between -0.02
// and +0.02. Swings here stand in for wars and famines beyond the border.
func (d *Drift) EventFactor(day int) float64 {
	n := d.noise.Eval2(float64(day)*0.01, 200)
	return -0.02 + n*0.04
}
