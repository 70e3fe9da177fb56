package dsd

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// rhoW is the density of liquid water in g mm^-3.
const rhoW = 1e-3

// MedianDiameter returns the median volume diameter D0 of one histogram:
// the diameter below which half of the liquid water content lies.
//
// It returns 0 for an empty histogram and the bin diameter when only one
// bin holds drops. When the half-mass crossing falls in the first bin,
// D0 is that bin's diameter.
func (d *DropSizeDistribution) MedianDiameter(nd []float64) float64 {
	return medianDiameter(nd, d.Diameter.Data, d.Spread.Data)
}

func medianDiameter(nd, diameter, spread []float64) float64 {
	if nansum(nd) == 0 {
		return 0
	}

	occupied, last := 0, -1
	for i, n := range nd {
		if isFinite(n) && n != 0 {
			occupied++
			last = i
		}
	}
	if occupied == 1 {
		return diameter[last]
	}

	mass := finiteOrZero(nil, nd)
	for i := range mass {
		mass[i] *= math.Pi / 6 * rhoW * spread[i] * math.Pow(diameter[i], 3)
	}
	cum := floats.CumSum(make([]float64, len(mass)), mass)
	half := 0.5 * cum[len(cum)-1]

	k := 0
	for k < len(cum)-1 && cum[k] < half {
		k++
	}
	if k == 0 {
		return diameter[0]
	}

	slope := (cum[k] - cum[k-1]) / (diameter[k] - diameter[k-1])
	run := (half - cum[k-1]) / slope
	return diameter[k-1] + run
}
