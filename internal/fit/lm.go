package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientData is returned when fewer finite samples remain than
	// there are model parameters.
	ErrInsufficientData = errors.New("insufficient finite samples for fit")

	// ErrNoConvergence is returned when the least-squares iteration fails:
	// a singular normal system, a non-finite model evaluation, or the
	// iteration cap was reached.
	ErrNoConvergence = errors.New("least-squares fit did not converge")
)

// model evaluates a fitted function and its parameter gradient at sample i.
// grad has one slot per parameter and must be fully overwritten.
type model func(params []float64, i int, grad []float64) float64

const (
	lmInitialDamping = 1e-3
	lmMaxDamping     = 1e16
	lmTol            = 1e-12
)

// levenbergMarquardt minimises Σ (y_i - model_i(params))² starting from p0.
// It returns the fitted parameters and the final Jacobian-based covariance.
func levenbergMarquardt(f model, y []float64, p0 []float64) ([]float64, *mat.SymDense, error) {
	n, p := len(y), len(p0)
	params := append([]float64(nil), p0...)
	maxIter := 200 * (p + 1)

	jac := mat.NewDense(n, p, nil)
	resid := make([]float64, n)
	grad := make([]float64, p)

	evaluate := func(ps []float64, withJac bool) (float64, bool) {
		var cost float64
		for i := range y {
			v := f(ps, i, grad)
			r := y[i] - v
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return 0, false
			}
			if withJac {
				resid[i] = r
				for j, g := range grad {
					if math.IsNaN(g) || math.IsInf(g, 0) {
						return 0, false
					}
					jac.Set(i, j, g)
				}
			}
			cost += r * r
		}
		return cost, true
	}

	cost, ok := evaluate(params, true)
	if !ok {
		return nil, nil, fmt.Errorf("evaluate initial guess: %w", ErrNoConvergence)
	}

	damping := lmInitialDamping
	trial := make([]float64, p)
	var jtj mat.SymDense
	jtr := mat.NewVecDense(p, nil)

	for iter := 0; ; iter++ {
		if iter >= maxIter {
			return nil, nil, fmt.Errorf("exceeded %d iterations: %w", maxIter, ErrNoConvergence)
		}
		if cost == 0 {
			break
		}

		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), mat.NewVecDense(n, resid))

		improved := false
		var step []float64
		for damping <= lmMaxDamping {
			a := mat.NewSymDense(p, nil)
			a.CopySym(&jtj)
			for j := 0; j < p; j++ {
				d := jtj.At(j, j)
				if d == 0 {
					d = 1
				}
				a.SetSym(j, j, jtj.At(j, j)+damping*d)
			}

			var chol mat.Cholesky
			if !chol.Factorize(a) {
				damping *= 10
				continue
			}
			delta := mat.NewVecDense(p, nil)
			if err := chol.SolveVecTo(delta, jtr); err != nil {
				damping *= 10
				continue
			}

			step = delta.RawVector().Data
			floats.AddTo(trial, params, step)
			trialCost, ok := evaluate(trial, false)
			if ok && trialCost < cost {
				improved = true
				relDrop := (cost - trialCost) / cost
				copy(params, trial)
				cost, _ = evaluate(params, true)
				damping = math.Max(damping/10, 1e-12)
				if relDrop < lmTol || floats.Norm(step, 2) < lmTol*(floats.Norm(params, 2)+lmTol) {
					return params, covariance(jac, cost, n, p), nil
				}
				break
			}
			damping *= 10
		}

		// No descent direction at any damping: the current point is a
		// numerical minimum.
		if !improved {
			break
		}
	}

	for _, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, ErrNoConvergence
		}
	}
	return params, covariance(jac, cost, n, p), nil
}

// covariance returns s²·(JᵀJ)⁻¹ with s² = SSR/(n-p), or nil when the
// degrees of freedom or the normal matrix do not allow it.
func covariance(jac *mat.Dense, cost float64, n, p int) *mat.SymDense {
	if n <= p {
		return nil
	}
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil
	}
	inv.ScaleSym(cost/float64(n-p), &inv)
	return &inv
}
