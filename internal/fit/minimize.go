package fit

import (
	"errors"
	"math"
)

// ErrInvalidBounds is returned when a bounded search is given lo >= hi or
// non-finite bounds.
var ErrInvalidBounds = errors.New("invalid search bounds")

// BoundedOptions tunes MinimizeBounded. The zero value uses XTol=1e-5 and
// MaxIter=500.
type BoundedOptions struct {
	XTol    float64
	MaxIter int
}

// BoundedResult is the outcome of a bounded scalar minimisation.
type BoundedResult struct {
	X          float64
	F          float64
	Iterations int

	// Converged is false when MaxIter function evaluations were used up
	// before the bracket shrank below the tolerance.
	Converged bool
}

// MinimizeBounded finds a local minimum of f on [lo, hi] using Brent's
// method (golden-section search with parabolic interpolation). No
// derivatives are needed and the search never evaluates f outside the
// interval.
//
// NaN values of f are treated as +Inf so that undefined regions of a cost
// surface repel the search instead of corrupting the parabolic steps.
func MinimizeBounded(f func(float64) float64, lo, hi float64, opts *BoundedOptions) (BoundedResult, error) {
	if !(lo < hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return BoundedResult{}, ErrInvalidBounds
	}

	xtol, maxIter := 1e-5, 500
	if opts != nil {
		if opts.XTol > 0 {
			xtol = opts.XTol
		}
		if opts.MaxIter > 0 {
			maxIter = opts.MaxIter
		}
	}

	eval := func(x float64) float64 {
		y := f(x)
		if math.IsNaN(y) {
			return math.Inf(1)
		}
		return y
	}

	sqrtEps := math.Sqrt(2.2e-16)
	goldenMean := 0.5 * (3.0 - math.Sqrt(5.0))

	a, b := lo, hi
	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64
	fx := eval(xf)
	num := 1
	ffulc, fnfc := fx, fx

	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xtol/3.0
	tol2 := 2.0 * tol1

	converged := true
	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true

		// Try a parabolic step through the three best points.
		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2.0 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x := xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * sign(xm-xf)
				}
			} else {
				golden = true
			}
		}

		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x := xf + sign(rat)*math.Max(math.Abs(rat), tol1)
		fu := eval(x)
		num++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xtol/3.0
		tol2 = 2.0 * tol1

		if num >= maxIter {
			converged = false
			break
		}
	}

	return BoundedResult{X: xf, F: fx, Iterations: num, Converged: converged}, nil
}

// sign returns -1 for negative v and +1 otherwise, so a zero step still
// moves the search.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
