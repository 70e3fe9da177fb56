package dsd

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// stepParams holds the per-step results of the parameterization.
type stepParams struct {
	nt, w, d0, nw, dm, dmax float64
	mu                      MuEstimate
}

// CalculateDSDParameterization derives Nt, W, D0, Nw, Dmax, Dm, mu, Lambda
// and N0 for every time step and stores them in d.Fields, replacing any
// previous values.
//
// Time steps are processed in parallel. An empty step never fails the call:
// its count and mass fields stay 0 while mu, Lambda and N0 are NaN. The
// only error returned is ctx's.
func (d *DropSizeDistribution) CalculateDSDParameterization(ctx context.Context) error {
	n := d.NumTimes()
	steps := make([]stepParams, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < n; t++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			steps[t] = d.parameterizeStep(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("parameterize dsd: %w", err)
	}

	lambda, n0, err := d.ExponentialParams(2, 4)
	if err != nil {
		return fmt.Errorf("parameterize dsd: %w", err)
	}

	nt, w, d0, nw := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	dm, dmax, mu := make([]float64, n), make([]float64, n), make([]float64, n)
	status := make([]MuStatus, n)
	for t, s := range steps {
		nt[t], w[t], d0[t], nw[t] = s.nt, s.w, s.d0, s.nw
		dm[t], dmax[t] = s.dm, s.dmax
		mu[t], status[t] = s.mu.Value, s.mu.Status
	}

	d.Fields.Nt = newField(FieldNt, nt)
	d.Fields.W = newField(FieldW, w)
	d.Fields.D0 = newField(FieldD0, d0)
	d.Fields.Nw = newField(FieldNw, nw)
	d.Fields.Dm = newField(FieldDm, dm)
	d.Fields.Dmax = newField(FieldDmax, dmax)
	d.Fields.Mu = newField(FieldMu, mu)
	d.Fields.MuStatus = status
	d.Fields.Lambda = newField(FieldLambda, lambda)
	d.Fields.N0 = newField(FieldN0, n0)
	return nil
}

// parameterizeStep computes the scalar fields of time step t. Nw uses W in
// g m^-3 and Dm in mm, giving mm^-1 m^-3 with no extra scale factor.
func (d *DropSizeDistribution) parameterizeStep(t int) stepParams {
	nd := d.Nd.Data[t]
	if nansum(nd) == 0 {
		return stepParams{mu: MuEstimate{Value: math.NaN(), Status: MuUnfittable, Cost: math.NaN()}}
	}

	diameter, spread := d.Diameter.Data, d.Spread.Data
	var s stepParams
	s.dm = moment(nd, diameter, spread, 4) / moment(nd, diameter, spread, 3)
	s.nt = moment(nd, diameter, spread, 0)
	s.w = math.Pi / 6 * rhoW * moment(nd, diameter, spread, 3)
	s.d0 = medianDiameter(nd, diameter, spread)
	s.nw = 256 / (math.Pi * rhoW) * s.w / math.Pow(s.dm, 4)
	for i := len(nd) - 1; i >= 0; i-- {
		if isFinite(nd[i]) && nd[i] > 0 {
			s.dmax = diameter[i]
			break
		}
	}
	s.mu = estimateMu(s.d0, s.nw, nd, diameter)
	return s
}
