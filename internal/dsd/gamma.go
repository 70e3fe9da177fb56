package dsd

import "math"

// GammaPSD is the normalized gamma drop size distribution
//
//	N(D) = Nw * f(mu) * (D/D0)^mu * exp(-(3.67+mu)*D/D0)
//	f(mu) = 6/3.67^4 * (3.67+mu)^(mu+4) / Gamma(mu+4)
//
// truncated to zero above DMax.
type GammaPSD struct {
	D0   float64
	Nw   float64
	Mu   float64
	DMax float64

	nf float64
}

// NewGammaPSD returns a GammaPSD truncated at 3*D0.
func NewGammaPSD(d0, nw, mu float64) GammaPSD {
	return GammaPSD{
		D0:   d0,
		Nw:   nw,
		Mu:   mu,
		DMax: 3 * d0,
		nf:   nw * 6 / math.Pow(3.67, 4) * math.Pow(3.67+mu, mu+4) / math.Gamma(mu+4),
	}
}

// Eval returns N(D) in m^-3 mm^-1. It is zero at D=0 and beyond DMax, and
// NaN where the normalization is undefined (mu <= -3.67).
func (g GammaPSD) Eval(d float64) float64 {
	if d == 0 || d > g.DMax {
		return 0
	}
	x := d / g.D0
	return g.nf * math.Exp(g.Mu*math.Log(x)-(3.67+g.Mu)*x)
}

// Sample evaluates the distribution at each diameter.
func (g GammaPSD) Sample(diameter []float64) []float64 {
	out := make([]float64, len(diameter))
	for i, d := range diameter {
		out[i] = g.Eval(d)
	}
	return out
}
