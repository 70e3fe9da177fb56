package dsd

import (
	"fmt"
	"math"
)

// FilterOnDropSize zeroes Nd in every bin whose diameter is not strictly
// between dropMin and dropMax. A non-positive dropMax disables the upper
// limit. Derived fields are not recomputed.
func (d *DropSizeDistribution) FilterOnDropSize(dropMin, dropMax float64) {
	if dropMax <= 0 {
		dropMax = math.Inf(1)
	}
	for i, diam := range d.Diameter.Data {
		if diam > dropMin && diam < dropMax {
			continue
		}
		for t := range d.Nd.Data {
			d.Nd.Data[t][i] = 0
		}
	}
}

// ParsivelSamplingArea is the effective sampling area in mm^2 of a Parsivel
// laser sheet for a drop of diameter d mm.
func ParsivelSamplingArea(d float64) float64 {
	return 180 * (30 - 0.5*d)
}

// NdFromCounts converts raw drop counts per bin over dt seconds into
// concentrations in m^-3 mm^-1, Nd = 1e6*C / (A*v*dD*dt), with A in mm^2 and
// v in m/s. Bins with zero area or velocity yield 0.
func NdFromCounts(counts, velocity, area, spread []float64, dt float64) ([]float64, error) {
	n := len(counts)
	if len(velocity) != n || len(area) != n || len(spread) != n {
		return nil, fmt.Errorf("counts has %d bins, velocity %d, area %d, spread %d: %w",
			n, len(velocity), len(area), len(spread), ErrInvalidGeometry)
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("sampling interval %g s not positive: %w", dt, ErrInvalidGeometry)
	}

	nd := make([]float64, n)
	for i, c := range counts {
		den := area[i] * velocity[i] * spread[i] * dt
		if den == 0 {
			continue
		}
		nd[i] = 1e6 * c / den
	}
	return nd, nil
}
