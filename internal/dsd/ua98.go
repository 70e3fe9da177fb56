package dsd

import "math"

// GammaMoments holds per-step gamma parameters of N(D) = N0*D^mu*exp(-Lambda*D)
// derived by the method of moments.
type GammaMoments struct {
	Eta    []float64
	Mu     []float64
	Lambda []float64
	N0     []float64
	D0     []float64
}

// muDenomTol masks steps where the mu solution's denominator 2(eta-1)
// is too close to zero to be stable.
const muDenomTol = 0.1

// UlbrichAtlas fits a gamma distribution to every step from moments M2, M4
// and M6 (Ulbrich and Atlas 1998):
//
//	eta    = M4^2 / (M2*M6)
//	mu     = ((7-11eta) - sqrt((7-11eta)^2 - 4(eta-1)(30eta-12))) / (2(eta-1))
//	Lambda = sqrt((4+mu)(3+mu)M2/M4)
//	N0     = M6*Lambda^(7+mu) / Gamma(7+mu)
//	D0     = (3.67+mu)/Lambda
//
// Steps that are empty or where |2(eta-1)| <= 0.1 are NaN.
func (d *DropSizeDistribution) UlbrichAtlas() GammaMoments {
	m2, m4, m6 := d.Moment(2), d.Moment(4), d.Moment(6)
	n := len(m2)
	g := GammaMoments{
		Eta:    make([]float64, n),
		Mu:     make([]float64, n),
		Lambda: make([]float64, n),
		N0:     make([]float64, n),
		D0:     make([]float64, n),
	}
	for t := 0; t < n; t++ {
		g.Eta[t], g.Mu[t], g.Lambda[t], g.N0[t], g.D0[t] = ulbrichAtlasStep(m2[t], m4[t], m6[t])
	}
	return g
}

func ulbrichAtlasStep(m2, m4, m6 float64) (eta, mu, lambda, n0, d0 float64) {
	nan := math.NaN()
	if m2 == 0 || m6 == 0 {
		return nan, nan, nan, nan, nan
	}
	eta = m4 * m4 / (m2 * m6)
	if math.Abs(2*(eta-1)) <= muDenomTol {
		return eta, nan, nan, nan, nan
	}

	a := 7 - 11*eta
	mu = (a - math.Sqrt(a*a-4*(eta-1)*(30*eta-12))) / (2 * (eta - 1))
	lambda = math.Sqrt((4 + mu) * (3 + mu) * m2 / m4)
	n0 = m6 * math.Pow(lambda, 7+mu) / math.Gamma(7+mu)
	d0 = (3.67 + mu) / lambda
	return eta, mu, lambda, n0, d0
}

// Fields returns the fit as output variables keyed by the FieldXxxUA98
// names. Eta is internal and not included.
func (g GammaMoments) Fields() map[string]Variable {
	out := make(map[string]Variable, 4)
	for name, data := range map[string][]float64{
		FieldMuUA98: g.Mu, FieldLambdaUA98: g.Lambda, FieldN0UA98: g.N0, FieldD0UA98: g.D0,
	} {
		out[name] = *newField(name, data)
	}
	return out
}
