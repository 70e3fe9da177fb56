// Package fit provides the nonlinear least-squares and bounded scalar
// minimisation routines used to fit rainfall relationships and gamma
// shape parameters.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PowerLaw is a fitted y = A·x^B relationship.
type PowerLaw struct {
	A, B float64

	// Covariance is the 2x2 parameter covariance in (A, B) order. It is nil
	// when there are no residual degrees of freedom.
	Covariance *mat.SymDense

	// N is the number of finite samples used by the fit.
	N int
}

// Eval returns A·x^B.
func (p PowerLaw) Eval(x float64) float64 {
	return p.A * math.Pow(x, p.B)
}

// BilinearPowerLaw is a fitted y = A·x1^B·x2^C relationship.
type BilinearPowerLaw struct {
	A, B, C float64

	// Covariance is the 3x3 parameter covariance in (A, B, C) order.
	Covariance *mat.SymDense

	N int
}

// Eval returns A·x1^B·x2^C.
func (p BilinearPowerLaw) Eval(x1, x2 float64) float64 {
	return p.A * math.Pow(x1, p.B) * math.Pow(x2, p.C)
}

// Power fits y = a·x^b by Levenberg–Marquardt. Samples where x or y is NaN
// or ±Inf are dropped before fitting.
func Power(x, y []float64) (PowerLaw, error) {
	if len(x) != len(y) {
		return PowerLaw{}, fmt.Errorf("power fit: len(x)=%d len(y)=%d", len(x), len(y))
	}
	keep := finiteMask(x, y)
	xs, ys := compress(x, keep), compress(y, keep)
	if len(ys) < 2 {
		return PowerLaw{}, fmt.Errorf("power fit: %d samples: %w", len(ys), ErrInsufficientData)
	}

	p0 := []float64{1, 1}
	if allPositive(xs) && allPositive(ys) {
		lx, ly := logs(xs), logs(ys)
		alpha, beta := stat.LinearRegression(lx, ly, nil, false)
		if !math.IsNaN(alpha) && !math.IsNaN(beta) {
			p0 = []float64{math.Exp(alpha), beta}
		}
	}

	f := func(ps []float64, i int, grad []float64) float64 {
		xb := math.Pow(xs[i], ps[1])
		grad[0] = xb
		grad[1] = ps[0] * xb * math.Log(xs[i])
		return ps[0] * xb
	}

	params, cov, err := levenbergMarquardt(f, ys, p0)
	if err != nil {
		return PowerLaw{}, fmt.Errorf("power fit: %w", err)
	}
	return PowerLaw{A: params[0], B: params[1], Covariance: cov, N: len(ys)}, nil
}

// Power2 fits y = a·x1^b·x2^c by Levenberg–Marquardt. Samples where any of
// x1, x2 or y is non-finite are dropped before fitting.
func Power2(x1, x2, y []float64) (BilinearPowerLaw, error) {
	if len(x1) != len(y) || len(x2) != len(y) {
		return BilinearPowerLaw{}, fmt.Errorf("power2 fit: len(x1)=%d len(x2)=%d len(y)=%d", len(x1), len(x2), len(y))
	}
	keep := finiteMask(x1, x2, y)
	a1, a2, ys := compress(x1, keep), compress(x2, keep), compress(y, keep)
	if len(ys) < 3 {
		return BilinearPowerLaw{}, fmt.Errorf("power2 fit: %d samples: %w", len(ys), ErrInsufficientData)
	}

	p0 := []float64{1, 1, 1}
	if allPositive(a1) && allPositive(a2) && allPositive(ys) {
		if seed, ok := logLinearSeed(logs(a1), logs(a2), logs(ys)); ok {
			p0 = seed
		}
	}

	f := func(ps []float64, i int, grad []float64) float64 {
		p1 := math.Pow(a1[i], ps[1])
		p2 := math.Pow(a2[i], ps[2])
		v := ps[0] * p1 * p2
		grad[0] = p1 * p2
		grad[1] = v * math.Log(a1[i])
		grad[2] = v * math.Log(a2[i])
		return v
	}

	params, cov, err := levenbergMarquardt(f, ys, p0)
	if err != nil {
		return BilinearPowerLaw{}, fmt.Errorf("power2 fit: %w", err)
	}
	return BilinearPowerLaw{A: params[0], B: params[1], C: params[2], Covariance: cov, N: len(ys)}, nil
}

// logLinearSeed solves ln y = ln a + b·ln x1 + c·ln x2 by QR least squares.
func logLinearSeed(lx1, lx2, ly []float64) ([]float64, bool) {
	n := len(ly)
	X := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		X.Set(i, 1, lx1[i])
		X.Set(i, 2, lx2[i])
	}

	var qr mat.QR
	qr.Factorize(X)

	coeffs := mat.NewVecDense(3, nil)
	if err := qr.SolveVecTo(coeffs, false, mat.NewVecDense(n, ly)); err != nil {
		return nil, false
	}
	seed := []float64{math.Exp(coeffs.AtVec(0)), coeffs.AtVec(1), coeffs.AtVec(2)}
	for _, v := range seed {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return seed, true
}

func finiteMask(cols ...[]float64) []bool {
	keep := make([]bool, len(cols[0]))
	for i := range keep {
		keep[i] = true
		for _, c := range cols {
			if math.IsNaN(c[i]) || math.IsInf(c[i], 0) {
				keep[i] = false
				break
			}
		}
	}
	return keep
}

func compress(v []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(v))
	for i, ok := range keep {
		if ok {
			out = append(out, v[i])
		}
	}
	return out
}

func allPositive(v []float64) bool {
	for _, x := range v {
		if x <= 0 {
			return false
		}
	}
	return true
}

func logs(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Log(x)
	}
	return out
}
