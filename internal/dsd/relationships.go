package dsd

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-dsd-etl/internal/fit"
)

// Rainfall relationship names.
const (
	RelationshipRKdp    = "R-Kdp"
	RelationshipRZh     = "R-Zh"
	RelationshipRZhZdr  = "R-Zh-Zdr"
	RelationshipRZhKdp  = "R-Zh-Kdp"
	RelationshipRZdrKdp = "R-Zdr-Kdp"
)

// RelationshipResult is the outcome of one rainfall relationship fit.
// Coefficients are (a, b) or (a, b, c) for R = a*x^b or R = a*x1^b*x2^c.
type RelationshipResult struct {
	Name         string
	Coefficients []float64
	N            int
	Err          error
}

// CalculateRKdpRelationship fits R = a*Kdp^b over steps with Kdp > 0 and R > 0.
func (d *DropSizeDistribution) CalculateRKdpRelationship() (fit.PowerLaw, error) {
	rr, err := d.rainRate()
	if err != nil {
		return fit.PowerLaw{}, err
	}
	kdp, err := d.scattered(FieldKdp)
	if err != nil {
		return fit.PowerLaw{}, err
	}

	var x, y []float64
	for t := range rr {
		if kdp[t] > 0 && rr[t] > 0 {
			x = append(x, kdp[t])
			y = append(y, rr[t])
		}
	}
	return fit.Power(x, y)
}

// CalculateRZhRelationship fits R = a*Z^b, Z being Zh in linear units,
// over steps with R > 0.
func (d *DropSizeDistribution) CalculateRZhRelationship() (fit.PowerLaw, error) {
	rr, err := d.rainRate()
	if err != nil {
		return fit.PowerLaw{}, err
	}
	zh, err := d.scattered(FieldZh)
	if err != nil {
		return fit.PowerLaw{}, err
	}

	var x, y []float64
	for t := range rr {
		if rr[t] > 0 {
			x = append(x, idb(zh[t]))
			y = append(y, rr[t])
		}
	}
	return fit.Power(x, y)
}

// CalculateRZhZdrRelationship fits R = a*Z^b*zdr^c with Zh and Zdr in
// linear units.
func (d *DropSizeDistribution) CalculateRZhZdrRelationship() (fit.BilinearPowerLaw, error) {
	return d.bilinearRelationship(predictor{FieldZh, true}, predictor{FieldZdr, true})
}

// CalculateRZhKdpRelationship fits R = a*Z^b*Kdp^c with Zh in linear units.
func (d *DropSizeDistribution) CalculateRZhKdpRelationship() (fit.BilinearPowerLaw, error) {
	return d.bilinearRelationship(predictor{FieldZh, true}, predictor{FieldKdp, false})
}

// CalculateRZdrKdpRelationship fits R = a*zdr^b*Kdp^c with Zdr in linear
// units. Zh is not needed.
func (d *DropSizeDistribution) CalculateRZdrKdpRelationship() (fit.BilinearPowerLaw, error) {
	return d.bilinearRelationship(predictor{FieldZdr, true}, predictor{FieldKdp, false})
}

// predictor is one scattered field in a bilinear fit. Decibel fields are
// converted to linear units.
type predictor struct {
	name string
	db   bool
}

func (p predictor) value(v float64) float64 {
	if p.db {
		return idb(v)
	}
	return v
}

// bilinearRelationship fits R against two predictors over steps with
// R > 0, Zdr > 0 and Kdp > 0. Only the filter fields and the predictors are
// read.
func (d *DropSizeDistribution) bilinearRelationship(p1, p2 predictor) (fit.BilinearPowerLaw, error) {
	rr, err := d.rainRate()
	if err != nil {
		return fit.BilinearPowerLaw{}, err
	}
	cols := make(map[string][]float64, 3)
	for _, name := range []string{FieldZdr, FieldKdp, p1.name, p2.name} {
		if _, ok := cols[name]; ok {
			continue
		}
		if cols[name], err = d.scattered(name); err != nil {
			return fit.BilinearPowerLaw{}, err
		}
	}
	zdr, kdp, c1, c2 := cols[FieldZdr], cols[FieldKdp], cols[p1.name], cols[p2.name]

	var x1, x2, y []float64
	for t := range rr {
		if rr[t] > 0 && zdr[t] > 0 && kdp[t] > 0 {
			x1 = append(x1, p1.value(c1[t]))
			x2 = append(x2, p2.value(c2[t]))
			y = append(y, rr[t])
		}
	}
	return fit.Power2(x1, x2, y)
}

// FitRelationships runs every relationship whose scattered inputs are
// present. A failed fit is reported in its result and does not stop the
// others.
func (d *DropSizeDistribution) FitRelationships() []RelationshipResult {
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := d.Fields.Scattered[n]; !ok {
				return false
			}
		}
		return true
	}

	var out []RelationshipResult
	single := func(name string, f func() (fit.PowerLaw, error)) {
		p, err := f()
		if err != nil {
			out = append(out, RelationshipResult{Name: name, Err: fmt.Errorf("fit %s: %w", name, err)})
			return
		}
		out = append(out, RelationshipResult{Name: name, Coefficients: []float64{p.A, p.B}, N: p.N})
	}
	double := func(name string, f func() (fit.BilinearPowerLaw, error)) {
		p, err := f()
		if err != nil {
			out = append(out, RelationshipResult{Name: name, Err: fmt.Errorf("fit %s: %w", name, err)})
			return
		}
		out = append(out, RelationshipResult{Name: name, Coefficients: []float64{p.A, p.B, p.C}, N: p.N})
	}

	if has(FieldKdp) {
		single(RelationshipRKdp, d.CalculateRKdpRelationship)
	}
	if has(FieldZh) {
		single(RelationshipRZh, d.CalculateRZhRelationship)
	}
	if has(FieldZh, FieldZdr, FieldKdp) {
		double(RelationshipRZhZdr, d.CalculateRZhZdrRelationship)
		double(RelationshipRZhKdp, d.CalculateRZhKdpRelationship)
	}
	if has(FieldZdr, FieldKdp) {
		double(RelationshipRZdrKdp, d.CalculateRZdrKdpRelationship)
	}
	return out
}

func (d *DropSizeDistribution) scattered(name string) ([]float64, error) {
	v, ok := d.Fields.Scattered[name]
	if !ok {
		return nil, fmt.Errorf("%s: supply scattered field first: %w", name, ErrMissingField)
	}
	return v.Data, nil
}

// idb converts decibels to linear units.
func idb(db float64) float64 {
	return math.Pow(10, 0.1*db)
}
