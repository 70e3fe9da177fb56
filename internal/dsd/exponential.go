package dsd

import (
	"fmt"
	"math"
)

// ExponentialParams fits N(D) = N0*exp(-Lambda*D) to every time step from
// moments m1 and m2 (Zhang et al. 2008):
//
//	Lambda = (M1*Gamma(m2+1) / (M2*Gamma(m1+1)))^(1/(m2-m1))
//	N0     = M1 * Lambda^(m1+1) / Gamma(m1+1)
//
// Empty time steps produce NaN for both parameters.
func (d *DropSizeDistribution) ExponentialParams(m1, m2 float64) (lambda, n0 []float64, err error) {
	if m1 == m2 {
		return nil, nil, fmt.Errorf("exponential params with m1=m2=%g: %w", m1, ErrInvalidMoments)
	}

	mom1, mom2 := d.Moment(m1), d.Moment(m2)
	lambda = make([]float64, len(mom1))
	n0 = make([]float64, len(mom1))
	for t := range mom1 {
		lambda[t], n0[t] = exponentialFromMoments(mom1[t], mom2[t], m1, m2)
	}
	return lambda, n0, nil
}

func exponentialFromMoments(mom1, mom2, m1, m2 float64) (lambda, n0 float64) {
	if mom1 == 0 || mom2 == 0 {
		return math.NaN(), math.NaN()
	}
	num := mom1 * math.Gamma(m2+1)
	den := mom2 * math.Gamma(m1+1)
	lambda = math.Pow(num/den, 1/(m2-m1))
	n0 = mom1 * math.Pow(lambda, m1+1) / math.Gamma(m1+1)
	return lambda, n0
}
