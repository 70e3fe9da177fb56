package dsd

import (
	"fmt"
	"sort"
)

// Profile is the fixed bin geometry of one instrument type. Profiles are
// immutable; accessors return copies.
type Profile struct {
	name     string
	diameter []float64
	spread   []float64
	binEdges []float64

	// samplingArea is the effective sampling area in mm^2 for a drop of the
	// given diameter, nil when the instrument reports Nd directly.
	samplingArea func(d float64) float64
}

// Instrument profile names.
const (
	ProfileParsivel = "parsivel"
	ProfileJWD      = "jwd"
	Profile2DVD     = "2dvd"
)

var profiles = map[string]Profile{
	ProfileParsivel: newProfile(ProfileParsivel,
		[]float64{
			0.06, 0.19, 0.32, 0.45, 0.58, 0.71, 0.84, 0.96, 1.09, 1.22,
			1.42, 1.67, 1.93, 2.19, 2.45, 2.83, 3.35, 3.86, 4.38, 4.89,
			5.66, 6.7, 7.72, 8.76, 9.78, 11.33, 13.39, 15.45, 17.51, 19.57,
			22.15, 25.24,
		},
		[]float64{
			0.129, 0.129, 0.129, 0.129, 0.129, 0.129, 0.129, 0.129, 0.129, 0.129,
			0.257, 0.257, 0.257, 0.257, 0.257,
			0.515, 0.515, 0.515, 0.515, 0.515,
			1.030, 1.030, 1.030, 1.030, 1.030,
			2.060, 2.060, 2.060, 2.060, 2.060,
			3.090, 3.090,
		},
		ParsivelSamplingArea,
	),
	ProfileJWD: newProfile(ProfileJWD,
		[]float64{
			0.359, 0.455, 0.551, 0.656, 0.771, 0.913, 1.116, 1.331, 1.506, 1.665,
			1.912, 2.259, 2.584, 2.869, 3.198, 3.544, 3.916, 4.350, 4.859, 5.373,
		},
		[]float64{
			0.092, 0.100, 0.091, 0.119, 0.112, 0.172, 0.233, 0.197, 0.153, 0.166,
			0.329, 0.364, 0.286, 0.284, 0.374, 0.319, 0.423, 0.446, 0.572, 0.455,
		},
		nil,
	),
	Profile2DVD: uniformProfile(Profile2DVD, 0.2, 50),
}

// newProfile accumulates bin edges from the spreads so that
// spread[i] == edges[i+1]-edges[i]. The first edge is the lower bound of
// the first bin, clamped at 0.
func newProfile(name string, diameter, spread []float64, area func(float64) float64) Profile {
	edges := make([]float64, len(diameter)+1)
	edges[0] = max(0, diameter[0]-spread[0]/2)
	for i := range spread {
		edges[i+1] = edges[i] + spread[i]
	}
	return Profile{name: name, diameter: diameter, spread: spread, binEdges: edges, samplingArea: area}
}

// uniformProfile builds n bins of equal width starting at 0.
func uniformProfile(name string, width float64, n int) Profile {
	p := Profile{
		name:     name,
		diameter: make([]float64, n),
		spread:   make([]float64, n),
		binEdges: make([]float64, n+1),
	}
	for i := 0; i < n; i++ {
		p.binEdges[i+1] = float64(i+1) * width
		p.diameter[i] = (float64(i) + 0.5) * width
		p.spread[i] = width
	}
	return p
}

// LookupProfile returns the named instrument profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown instrument %q", name)
	}
	return p, nil
}

// ProfileNames lists the known instrument profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Profile) Name() string { return p.name }
func (p Profile) NumBins() int { return len(p.diameter) }
func (p Profile) Diameter() []float64 { return clone(p.diameter) }
func (p Profile) Spread() []float64 { return clone(p.spread) }
func (p Profile) BinEdges() []float64 { return clone(p.binEdges) }
func (p Profile) HasSamplingArea() bool { return p.samplingArea != nil }

// SamplingArea returns the effective sampling area in mm^2 for each bin, or
// nil if the instrument has no area model.
func (p Profile) SamplingArea() []float64 {
	if p.samplingArea == nil {
		return nil
	}
	out := make([]float64, len(p.diameter))
	for i, d := range p.diameter {
		out[i] = p.samplingArea(d)
	}
	return out
}

// Source returns a Source with this profile's geometry and the given samples.
func (p Profile) Source(time []float64, nd [][]float64) Source {
	return Source{
		Instrument: p.name,
		Time:       time,
		Diameter:   p.Diameter(),
		Spread:     p.Spread(),
		BinEdges:   p.BinEdges(),
		Nd:         nd,
	}
}
