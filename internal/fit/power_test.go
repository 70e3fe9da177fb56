package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPower_ExactData(t *testing.T) {
	x := []float64{0.5, 1, 2, 3, 5, 8, 13}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2.5 * math.Pow(v, 1.7)
	}

	got, err := Power(x, y)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, got.A, 1e-6)
	assert.InDelta(t, 1.7, got.B, 1e-6)
	assert.Equal(t, len(x), got.N)
	assert.InDelta(t, y[3], got.Eval(x[3]), 1e-6)
}

func TestPower_DropsNonFiniteSamples(t *testing.T) {
	x := []float64{1, 2, 3, math.NaN()}
	y := []float64{44, 44 * math.Pow(2, 0.71), 44 * math.Pow(3, 0.71), 12}

	withNaN, err := Power(x, y)
	require.NoError(t, err)
	clean, err := Power(x[:3], y[:3])
	require.NoError(t, err)

	assert.InDelta(t, clean.A, withNaN.A, 1e-9)
	assert.InDelta(t, clean.B, withNaN.B, 1e-9)
	assert.Equal(t, 3, withNaN.N)
	assert.InDelta(t, 44.0, withNaN.A, 1e-6)
	assert.InDelta(t, 0.71, withNaN.B, 1e-6)
}

func TestPower_DropsInfiniteY(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{3, 3 * math.Pow(2, 1.4), math.Inf(1), 3 * math.Pow(4, 1.4), 3 * math.Pow(5, 1.4)}

	got, err := Power(x, y)
	require.NoError(t, err)
	assert.Equal(t, 4, got.N)
	assert.InDelta(t, 3.0, got.A, 1e-6)
	assert.InDelta(t, 1.4, got.B, 1e-6)
}

func TestPower_NoisyDataHasCovariance(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	noise := []float64{0.02, -0.01, 0.015, -0.02, 0.01, -0.005, 0.02, -0.015}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 10 * math.Pow(v, 0.8) * (1 + noise[i])
	}

	got, err := Power(x, y)
	require.NoError(t, err)
	require.NotNil(t, got.Covariance)

	r, c := got.Covariance.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Greater(t, got.Covariance.At(0, 0), 0.0)
	assert.InDelta(t, 10, got.A, 0.5)
	assert.InDelta(t, 0.8, got.B, 0.05)
}

func TestPower_InsufficientData(t *testing.T) {
	_, err := Power([]float64{1, math.NaN(), 3}, []float64{2, 4, math.Inf(-1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPower_LengthMismatch(t *testing.T) {
	_, err := Power([]float64{1, 2, 3}, []float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "len(x)=3")
}

func TestPower_NonFiniteModelFails(t *testing.T) {
	// ln(x) is undefined for negative x, so the Jacobian cannot be formed.
	_, err := Power([]float64{-1, -2, -3}, []float64{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestPower2_ExactData(t *testing.T) {
	x1 := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	x2 := []float64{1.5, 0.7, 2.2, 1.1, 3.0, 0.4, 1.9, 2.6, 0.9}
	y := make([]float64, len(x1))
	for i := range x1 {
		y[i] = 0.8 * math.Pow(x1[i], 0.6) * math.Pow(x2[i], -1.2)
	}

	got, err := Power2(x1, x2, y)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, got.A, 1e-6)
	assert.InDelta(t, 0.6, got.B, 1e-6)
	assert.InDelta(t, -1.2, got.C, 1e-6)
	assert.InDelta(t, y[4], got.Eval(x1[4], x2[4]), 1e-6)
}

func TestPower2_DropsNonFiniteSamples(t *testing.T) {
	x1 := []float64{1, 2, 3, 4, 5, 6}
	x2 := []float64{2, 3, math.NaN(), 1, 4, 5}
	y := make([]float64, len(x1))
	for i := range x1 {
		y[i] = 1.3 * math.Pow(x1[i], 1.1) * math.Pow(x2[i], 0.4)
	}

	got, err := Power2(x1, x2, y)
	require.NoError(t, err)
	assert.Equal(t, 5, got.N)
	assert.InDelta(t, 1.3, got.A, 1e-6)
	assert.InDelta(t, 1.1, got.B, 1e-6)
	assert.InDelta(t, 0.4, got.C, 1e-6)
}

func TestPower2_InsufficientData(t *testing.T) {
	_, err := Power2([]float64{1, 2}, []float64{1, 2}, []float64{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
