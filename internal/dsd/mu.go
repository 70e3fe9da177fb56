package dsd

import (
	"math"

	"github.com/couchcryptid/storm-dsd-etl/internal/fit"
)

// Shape parameter search range.
const (
	MuLowerBound = -10.0
	MuUpperBound = 20.0
)

// muBoundaryTol is how close to MuUpperBound an optimum must be to count as
// saturated.
const muBoundaryTol = 1e-3

// MuEstimate is the result of fitting the gamma shape parameter to one
// histogram. Value is NaN unless Status is MuConverged.
type MuEstimate struct {
	Value  float64
	Status MuStatus

	// Cost is the residual norm at the optimum, NaN when unfittable.
	Cost float64
}

// EstimateMu finds the mu in [MuLowerBound, MuUpperBound] for which
// NewGammaPSD(d0, nw, mu) best matches nd in the least-squares sense, using a
// bounded Brent search on sqrt(sum |nd - N(D)|^2). Missing bins are skipped.
func (d *DropSizeDistribution) EstimateMu(d0, nw float64, nd []float64) MuEstimate {
	return estimateMu(d0, nw, nd, d.Diameter.Data)
}

func estimateMu(d0, nw float64, nd, diameter []float64) MuEstimate {
	unfittable := MuEstimate{Value: math.NaN(), Status: MuUnfittable, Cost: math.NaN()}
	if nansum(nd) == 0 || !(d0 > 0) || !(nw > 0) || !isFinite(d0) || !isFinite(nw) {
		return unfittable
	}

	res, err := fit.MinimizeBounded(func(mu float64) float64 {
		return muCost(d0, nw, mu, nd, diameter)
	}, MuLowerBound, MuUpperBound, nil)
	if err != nil || !isFinite(res.F) {
		return unfittable
	}

	if MuUpperBound-res.X <= muBoundaryTol {
		return MuEstimate{Value: math.NaN(), Status: MuAtBoundary, Cost: res.F}
	}
	return MuEstimate{Value: res.X, Status: MuConverged, Cost: res.F}
}

// muCost is the residual norm between nd and the gamma model. A model that
// is undefined at an observed bin makes the whole cost NaN.
func muCost(d0, nw, mu float64, nd, diameter []float64) float64 {
	psd := NewGammaPSD(d0, nw, mu)
	var ss float64
	for i, n := range nd {
		if !isFinite(n) {
			continue
		}
		r := n - psd.Eval(diameter[i])
		if math.IsNaN(r) {
			return math.NaN()
		}
		ss += r * r
	}
	return math.Sqrt(ss)
}
