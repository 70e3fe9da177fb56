package dsd

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidGeometry is returned when bin geometry or array shapes
	// violate the distribution invariants.
	ErrInvalidGeometry = errors.New("invalid dsd geometry")

	// ErrInvalidMoments is returned when a two-moment method is asked to use
	// the same moment order twice.
	ErrInvalidMoments = errors.New("moment orders must differ")

	// ErrMissingField is returned when an operation depends on a field that
	// has not been computed or supplied yet.
	ErrMissingField = errors.New("missing field")
)

// Variable is a named physical quantity with its units, following the
// data/units/long_name convention used by file writers downstream.
type Variable struct {
	Data         []float64 `json:"data" msgpack:"data"`
	Units        string    `json:"units" msgpack:"units"`
	LongName     string    `json:"long_name" msgpack:"long_name"`
	StandardName string    `json:"standard_name,omitempty" msgpack:"standard_name,omitempty"`
}

// Spectrum is the T x N drop concentration matrix, Nd[t][i] in m^-3 mm^-1.
type Spectrum struct {
	Data     [][]float64 `json:"data" msgpack:"data"`
	Units    string      `json:"units" msgpack:"units"`
	LongName string      `json:"long_name" msgpack:"long_name"`
}

// Source is what a reader hands over to build a DropSizeDistribution.
// Velocity, RainRate and Scattered are optional.
type Source struct {
	Instrument string

	// Time holds sample timestamps in seconds since the Unix epoch.
	Time []float64

	Diameter []float64
	Spread   []float64
	BinEdges []float64
	Nd       [][]float64

	Velocity  []float64
	RainRate  []float64
	Scattered map[string]Variable
}

// DropSizeDistribution is a time series of binned drop concentrations
// together with the fields derived from it. Parameterization methods mutate
// Fields in place and overwrite whatever a previous call left there.
type DropSizeDistribution struct {
	Instrument string

	Time     Variable
	Diameter Variable
	Spread   Variable
	BinEdges Variable
	Nd       Spectrum

	// Velocity is the per-bin terminal fall speed, nil until supplied or
	// computed by CalculateFallSpeed.
	Velocity *Variable

	Fields Fields
}

// New validates src and builds a DropSizeDistribution that owns copies of
// its arrays. Any geometry violation is reported as ErrInvalidGeometry.
func New(src Source) (*DropSizeDistribution, error) {
	if err := validate(src); err != nil {
		return nil, err
	}

	nd := make([][]float64, len(src.Nd))
	for t, row := range src.Nd {
		nd[t] = append([]float64(nil), row...)
	}

	d := &DropSizeDistribution{
		Instrument: src.Instrument,
		Time:       Variable{Data: clone(src.Time), Units: "seconds since 1970-01-01T00:00:00Z", LongName: "Time", StandardName: "time"},
		Diameter:   Variable{Data: clone(src.Diameter), Units: "mm", LongName: "Particle diameter"},
		Spread:     Variable{Data: clone(src.Spread), Units: "mm", LongName: "Bin size spread of bins"},
		BinEdges:   Variable{Data: clone(src.BinEdges), Units: "mm", LongName: "Bin edges"},
		Nd:         Spectrum{Data: nd, Units: "m^-3 mm^-1", LongName: "Liquid water particle concentration"},
	}

	if len(src.Velocity) > 0 {
		d.Velocity = &Variable{Data: clone(src.Velocity), Units: "m s^-1", LongName: "Terminal fall velocity for each bin"}
	}
	if len(src.RainRate) > 0 {
		d.Fields.RainRate = newField(FieldRainRate, clone(src.RainRate))
	}
	for name, v := range src.Scattered {
		if len(v.Data) != len(src.Time) {
			return nil, fmt.Errorf("scattered field %s has %d samples for %d time steps: %w",
				name, len(v.Data), len(src.Time), ErrInvalidGeometry)
		}
		v.Data = clone(v.Data)
		d.Fields.SetScattered(name, v)
	}
	return d, nil
}

// NumTimes returns the number of time steps.
func (d *DropSizeDistribution) NumTimes() int { return len(d.Nd.Data) }

// NumBins returns the number of diameter bins.
func (d *DropSizeDistribution) NumBins() int { return len(d.Diameter.Data) }

func validate(src Source) error {
	n := len(src.Diameter)
	if n == 0 {
		return fmt.Errorf("no diameter bins: %w", ErrInvalidGeometry)
	}
	if len(src.Spread) != n {
		return fmt.Errorf("spread has %d bins, diameter has %d: %w", len(src.Spread), n, ErrInvalidGeometry)
	}
	if len(src.BinEdges) != n+1 {
		return fmt.Errorf("bin edges has %d entries, want %d: %w", len(src.BinEdges), n+1, ErrInvalidGeometry)
	}
	if len(src.Time) != len(src.Nd) {
		return fmt.Errorf("time has %d steps, Nd has %d rows: %w", len(src.Time), len(src.Nd), ErrInvalidGeometry)
	}
	for t, row := range src.Nd {
		if len(row) != n {
			return fmt.Errorf("Nd row %d has %d bins, want %d: %w", t, len(row), n, ErrInvalidGeometry)
		}
	}
	for i := 0; i < n; i++ {
		if !isFinite(src.Diameter[i]) || (i > 0 && src.Diameter[i] <= src.Diameter[i-1]) {
			return fmt.Errorf("diameter not strictly increasing at bin %d: %w", i, ErrInvalidGeometry)
		}
		if !(src.Spread[i] > 0) || math.IsInf(src.Spread[i], 0) {
			return fmt.Errorf("spread %g at bin %d not positive: %w", src.Spread[i], i, ErrInvalidGeometry)
		}
	}
	for i := 1; i <= n; i++ {
		if !(src.BinEdges[i] > src.BinEdges[i-1]) {
			return fmt.Errorf("bin edges not strictly increasing at %d: %w", i, ErrInvalidGeometry)
		}
	}
	for i := 1; i < len(src.Time); i++ {
		if src.Time[i] < src.Time[i-1] {
			return fmt.Errorf("time decreases at step %d: %w", i, ErrInvalidGeometry)
		}
	}
	if len(src.Velocity) > 0 && len(src.Velocity) != n {
		return fmt.Errorf("velocity has %d bins, want %d: %w", len(src.Velocity), n, ErrInvalidGeometry)
	}
	if len(src.RainRate) > 0 && len(src.RainRate) != len(src.Time) {
		return fmt.Errorf("rain rate has %d samples for %d time steps: %w", len(src.RainRate), len(src.Time), ErrInvalidGeometry)
	}
	return nil
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOrZero copies src into dst with NaN and Inf entries set to 0, so
// missing bins drop out of gonum reductions. dst is reallocated when too
// short.
func finiteOrZero(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, x := range src {
		if isFinite(x) {
			dst[i] = x
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// nansum adds the finite entries of v.
func nansum(v []float64) float64 {
	return floats.Sum(finiteOrZero(nil, v))
}
