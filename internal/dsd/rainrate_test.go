package dsd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallSpeed(t *testing.T) {
	assert.Zero(t, FallSpeed(0.06, 1000), "negative fit is clamped")
	assert.InDelta(t, 9.65-10.3*math.Exp(-0.6*2), FallSpeed(2, 1000), 1e-12)
	assert.InDelta(t, 9.65, FallSpeed(100, 1000), 1e-9)

	low := FallSpeed(2, 800)
	assert.InDelta(t, FallSpeed(2, 1000)*math.Pow(0.8, 0.4), low, 1e-12)
	assert.Less(t, FallSpeed(2, 700), FallSpeed(2, 1000), "drops fall slower at low pressure")
}

func TestCalculateRainRate(t *testing.T) {
	d := newTestDSD(t, ProfileParsivel,
		bins(32, map[int]float64{9: 50}),
		make([]float64, 32),
	)
	assert.Nil(t, d.Velocity)

	d.CalculateRainRate()
	require.NotNil(t, d.Velocity)
	require.NotNil(t, d.Fields.RainRate)

	v := FallSpeed(1.22, StandardPressureMb)
	want := 0.6 * math.Pi * 1e-3 * v * 50 * 0.129 * math.Pow(1.22, 3)
	assert.InDelta(t, want, d.Fields.RainRate.Data[0], 1e-12)
	assert.Zero(t, d.Fields.RainRate.Data[1])
	assert.Equal(t, "mm h^-1", d.Fields.RainRate.Units)
}

func TestCalculateRainRate_UsesSuppliedVelocity(t *testing.T) {
	src := validSource()
	src.Velocity = []float64{1, 2, 3}
	d, err := New(src)
	require.NoError(t, err)

	d.CalculateRainRate()
	want := 0.6 * math.Pi * 1e-3 * (1*1*math.Pow(0.5, 3) + 2*2*math.Pow(1.5, 3) + 3*3*math.Pow(2.5, 3))
	assert.InDelta(t, want, d.Fields.RainRate.Data[0], 1e-12)
}

func TestCalculateRainRate_SkipsMissingBins(t *testing.T) {
	row := bins(32, map[int]float64{4: 30, 9: 50})
	withMissing := append([]float64(nil), row...)
	withMissing[0] = math.NaN()
	withMissing[31] = math.Inf(1)

	d := newTestDSD(t, ProfileParsivel, row, withMissing)
	d.CalculateRainRate()
	assert.Positive(t, d.Fields.RainRate.Data[0])
	assert.Equal(t, d.Fields.RainRate.Data[0], d.Fields.RainRate.Data[1])
}

func TestCalculateFallSpeed_Replaces(t *testing.T) {
	src := validSource()
	src.Velocity = []float64{1, 2, 3}
	d, err := New(src)
	require.NoError(t, err)

	d.CalculateFallSpeed(1000)
	assert.InDelta(t, FallSpeed(2.5, 1000), d.Velocity.Data[2], 1e-12)
}
