package dsd

import "sort"

// Output field names.
const (
	FieldNt       = "Nt"
	FieldW        = "W"
	FieldD0       = "D0"
	FieldNw       = "Nw"
	FieldDmax     = "Dmax"
	FieldDm       = "Dm"
	FieldN0       = "N0"
	FieldMu       = "mu"
	FieldLambda   = "Lambda"
	FieldRainRate = "rain_rate"
)

// Ulbrich and Atlas (1998) method-of-moments gamma fields.
const (
	FieldMuUA98     = "mu_ua98"
	FieldLambdaUA98 = "Lambda_ua98"
	FieldN0UA98     = "N0_ua98"
	FieldD0UA98     = "D0_ua98"
)

// Externally supplied scattering field names recognised by the relationship fits.
const (
	FieldZh  = "Zh"
	FieldZdr = "Zdr"
	FieldKdp = "Kdp"
	FieldAi  = "Ai"
)

type fieldMeta struct {
	units, longName string
}

var fieldMetadata = map[string]fieldMeta{
	FieldNt:       {"m^-3", "Total concentration of drops"},
	FieldW:        {"g m^-3", "Liquid water content"},
	FieldD0:       {"mm", "Median drop diameter"},
	FieldNw:       {"mm^-1 m^-3", "Normalized intercept parameter"},
	FieldDmax:     {"mm", "Maximum drop diameter"},
	FieldDm:       {"mm", "Mass-weighted mean diameter"},
	FieldN0:       {"mm^-1 m^-3", "Intercept parameter"},
	FieldMu:       {"unitless", "Shape parameter"},
	FieldLambda:   {"mm^-1", "Slope parameter"},
	FieldRainRate: {"mm h^-1", "Rain rate"},

	FieldMuUA98:     {"unitless", "Shape parameter (moments 2, 4, 6)"},
	FieldLambdaUA98: {"mm^-1", "Slope parameter (moments 2, 4, 6)"},
	FieldN0UA98:     {"mm^(-1-mu) m^-3", "Intercept parameter (moments 2, 4, 6)"},
	FieldD0UA98:     {"mm", "Median drop diameter (moments 2, 4, 6)"},
}

func newField(name string, data []float64) *Variable {
	meta := fieldMetadata[name]
	return &Variable{Data: data, Units: meta.units, LongName: meta.longName}
}

// MuStatus classifies the outcome of a shape parameter fit.
type MuStatus int

const (
	// MuUnfittable means there was nothing to fit: an empty histogram,
	// non-positive D0 or Nw, or a cost that was undefined at the optimum.
	MuUnfittable MuStatus = iota

	// MuConverged means the minimiser found an interior optimum.
	MuConverged

	// MuAtBoundary means the optimum sat on the upper search bound, so the
	// value says more about the search range than about the distribution.
	MuAtBoundary
)

func (s MuStatus) String() string {
	switch s {
	case MuConverged:
		return "converged"
	case MuAtBoundary:
		return "at_boundary"
	default:
		return "unfittable"
	}
}

// Fields holds the derived quantities of a DropSizeDistribution. Each slot
// is nil until the owning operation runs.
type Fields struct {
	Nt, W, D0, Nw, Dmax, Dm *Variable
	N0, Mu, Lambda          *Variable
	RainRate                *Variable

	// MuStatus has one entry per time step once mu has been estimated.
	MuStatus []MuStatus

	// Scattered holds radar quantities computed by an external scattering
	// code (Zh, Zdr, Kdp, Ai, ...).
	Scattered map[string]Variable
}

// SetScattered stores an externally computed field under name.
func (f *Fields) SetScattered(name string, v Variable) {
	if f.Scattered == nil {
		f.Scattered = make(map[string]Variable)
	}
	f.Scattered[name] = v
}

// Map returns every populated field keyed by its output name. Scattered
// fields are included under their own names.
func (f Fields) Map() map[string]Variable {
	out := make(map[string]Variable, 10+len(f.Scattered))
	for name, v := range map[string]*Variable{
		FieldNt: f.Nt, FieldW: f.W, FieldD0: f.D0, FieldNw: f.Nw, FieldDmax: f.Dmax,
		FieldDm: f.Dm, FieldN0: f.N0, FieldMu: f.Mu, FieldLambda: f.Lambda, FieldRainRate: f.RainRate,
	} {
		if v != nil {
			out[name] = *v
		}
	}
	for name, v := range f.Scattered {
		out[name] = v
	}
	return out
}

// Names returns the populated field names in sorted order.
func (f Fields) Names() []string {
	m := f.Map()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
