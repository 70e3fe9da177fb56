package dsd

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Moment returns the m-th moment of every time step,
// M_m[t] = sum_i Nd[t][i] * D_i^m * dD_i. Any real m is accepted.
func (d *DropSizeDistribution) Moment(m float64) []float64 {
	weights := momentWeights(d.Diameter.Data, d.Spread.Data, m)
	out := make([]float64, d.NumTimes())
	var buf []float64
	for t, nd := range d.Nd.Data {
		buf = finiteOrZero(buf, nd)
		out[t] = floats.Dot(buf, weights)
	}
	return out
}

// moment computes the m-th moment of a single histogram, skipping missing
// bins.
func moment(nd, diameter, spread []float64, m float64) float64 {
	return floats.Dot(finiteOrZero(nil, nd), momentWeights(diameter, spread, m))
}

// momentWeights returns D_i^m * dD_i per bin.
func momentWeights(diameter, spread []float64, m float64) []float64 {
	w := make([]float64, len(diameter))
	for i, d := range diameter {
		w[i] = math.Pow(d, m) * spread[i]
	}
	return w
}
