package dsd

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RainType is a convective/stratiform classification.
type RainType int

const (
	Unclassified RainType = iota
	Stratiform
	Convective
	Transition
)

func (r RainType) String() string {
	switch r {
	case Stratiform:
		return "stratiform"
	case Convective:
		return "convective"
	case Transition:
		return "transition"
	default:
		return "unclassified"
	}
}

// BringiOptions parameterizes PartitionBringi2009. The separator line is
// log10(Nw) = Slope*D0 + Intercept.
type BringiOptions struct {
	Slope           float64
	Intercept       float64
	ConvectiveLimit float64
	StratiformLimit float64
}

// DefaultBringiOptions are the Bringi et al. (2009) coefficients.
var DefaultBringiOptions = BringiOptions{Slope: -1.65, Intercept: 6.5, ConvectiveLimit: 0.1, StratiformLimit: -0.1}

// PartitionBringi2009 classifies each step by its distance from the
// separator line in log10(Nw)-D0 space. Steps with Nw <= 0 are
// unclassified.
func PartitionBringi2009(nw, d0 []float64, opts BringiOptions) []RainType {
	out := make([]RainType, len(nw))
	for t := range nw {
		if !(nw[t] > 0) || !isFinite(d0[t]) {
			continue
		}
		index := math.Log10(nw[t]) - (opts.Slope*d0[t] + opts.Intercept)
		switch {
		case math.IsNaN(index):
		case index <= opts.StratiformLimit:
			out[t] = Stratiform
		case index >= opts.ConvectiveLimit:
			out[t] = Convective
		default:
			out[t] = Transition
		}
	}
	return out
}

// IslamOptions parameterizes PartitionIslam2012.
type IslamOptions struct {
	RainRateLimit float64
	StdDevLimit   float64
	Window        int
}

// DefaultIslamOptions are the Islam et al. (2012) thresholds.
var DefaultIslamOptions = IslamOptions{RainRateLimit: 10, StdDevLimit: 1.5, Window: 4}

// PartitionIslam2012 classifies each step from a rain rate series. A step
// is stratiform when every rain rate in its window is below RainRateLimit
// and their standard deviation is below StdDevLimit; otherwise it is
// convective. The series is reflect-padded by Window/2 at both ends and
// step t uses padded samples [t, t+Window).
func PartitionIslam2012(rainRate []float64, opts IslamOptions) []RainType {
	n := len(rainRate)
	out := make([]RainType, n)
	if n == 0 {
		return out
	}
	w := opts.Window
	if w < 1 {
		w = 1
	}
	pad := w / 2

	window := make([]float64, w)
	for t := 0; t < n; t++ {
		below := true
		for k := 0; k < w; k++ {
			v := rainRate[reflectIndex(t-pad+k, n)]
			window[k] = v
			if !(v < opts.RainRateLimit) {
				below = false
			}
		}
		std := math.Sqrt(stat.PopVariance(window, nil))
		if below && std < opts.StdDevLimit {
			out[t] = Stratiform
		} else {
			out[t] = Convective
		}
	}
	return out
}

// reflectIndex maps i into [0, n) by mirroring about the end samples
// without repeating them.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// DefaultAtlasLimit is the Atlas et al. (2000) vertical velocity threshold
// in m s^-1.
const DefaultAtlasLimit = 1.0

// PartitionAtlas2000 classifies by hydrometeor vertical velocity: above
// limit is convective, below is stratiform.
func PartitionAtlas2000(verticalVelocity []float64, limit float64) []RainType {
	out := make([]RainType, len(verticalVelocity))
	for t, w := range verticalVelocity {
		switch {
		case w > limit:
			out[t] = Convective
		case w < limit:
			out[t] = Stratiform
		}
	}
	return out
}
