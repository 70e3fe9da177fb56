package domain

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStation = "OUN-01"
	testStart   = "2024-04-26T15:00:00Z"
)

var testStartTime = time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)

// gammaRows samples one gamma spectrum per (d0, nw, mu) triple on the
// Parsivel bins. A zero triple yields an empty step.
func gammaRows(t *testing.T, params ...[3]float64) []Series {
	t.Helper()
	p, err := dsd.LookupProfile(dsd.ProfileParsivel)
	require.NoError(t, err)

	rows := make([]Series, len(params))
	for i, pr := range params {
		if pr[0] == 0 {
			rows[i] = make(Series, p.NumBins())
			continue
		}
		rows[i] = dsd.NewGammaPSD(pr[0], pr[1], pr[2]).Sample(p.Diameter())
	}
	return rows
}

func testRecord(t *testing.T) RawDSDRecord {
	t.Helper()
	return RawDSDRecord{
		Station:         testStation,
		Instrument:      dsd.ProfileParsivel,
		Lat:             35.18,
		Lon:             -97.44,
		StartTime:       testStartTime,
		IntervalSeconds: 60,
		Nd: gammaRows(t,
			[3]float64{1.2, 8000, 3},
			[3]float64{1.5, 5000, 2},
			[3]float64{},
			[3]float64{0.9, 20000, 5},
		),
	}
}

func rawEventFor(t *testing.T, rec RawDSDRecord) RawEvent {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return RawEvent{Key: []byte(rec.Station), Value: data, Timestamp: testStartTime}
}

func freezeClock(t *testing.T) clockwork.Clock {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })
	return fake
}

func TestParseRawEvent(t *testing.T) {
	t.Run("parsivel nd record", func(t *testing.T) {
		data := []byte(`{"station":" OUN-01 ","instrument":"Parsivel","lat":35.18,"lon":-97.44,` +
			`"start_time":"` + testStart + `","interval_seconds":60,"nd":[[1,2,null],[0,0,0]]}`)
		rec, err := ParseRawEvent(RawEvent{Value: data})
		require.NoError(t, err)

		assert.Equal(t, testStation, rec.Station)
		assert.Equal(t, dsd.ProfileParsivel, rec.Instrument)
		assert.Equal(t, testStartTime, rec.StartTime)
		assert.InDelta(t, 60.0, rec.IntervalSeconds, 0)
		assert.Equal(t, 2, rec.NumSteps())
		require.Len(t, rec.Nd[0], 3)
		assert.True(t, math.IsNaN(rec.Nd[0][2]), "null decodes as NaN")
	})

	t.Run("start time falls back to message timestamp", func(t *testing.T) {
		data := []byte(`{"station":"OUN-01","instrument":"jwd","interval_seconds":30,"nd":[[1]]}`)
		ts := time.Date(2024, time.April, 26, 10, 0, 0, 0, time.FixedZone("CDT", -5*3600))
		rec, err := ParseRawEvent(RawEvent{Value: data, Timestamp: ts})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC), rec.StartTime)
		assert.Equal(t, time.UTC, rec.StartTime.Location())
	})

	t.Run("counts record", func(t *testing.T) {
		data := []byte(`{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `",` +
			`"interval_seconds":60,"counts":[[3,4],[5,6],[0,1]]}`)
		rec, err := ParseRawEvent(RawEvent{Value: data})
		require.NoError(t, err)
		assert.Equal(t, 3, rec.NumSteps())
		assert.Empty(t, rec.Nd)
	})
}

func TestParseRawEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing station", data: `{"instrument":"parsivel","start_time":"` + testStart + `","interval_seconds":60,"nd":[[1]]}`},
		{name: "missing instrument", data: `{"station":"OUN-01","start_time":"` + testStart + `","interval_seconds":60,"nd":[[1]]}`},
		{name: "missing start time", data: `{"station":"OUN-01","instrument":"parsivel","interval_seconds":60,"nd":[[1]]}`},
		{name: "zero interval", data: `{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `","nd":[[1]]}`},
		{name: "negative interval", data: `{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `","interval_seconds":-5,"nd":[[1]]}`},
		{name: "no spectrum", data: `{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `","interval_seconds":60}`},
		{name: "nd and counts", data: `{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `","interval_seconds":60,"nd":[[1]],"counts":[[1]]}`},
		{name: "vertical velocity length", data: `{"station":"OUN-01","instrument":"parsivel","start_time":"` + testStart + `","interval_seconds":60,"nd":[[1]],"vertical_velocity":[0.5,1.5]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRawEvent(RawEvent{Value: []byte(tt.data)})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte("not json")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		var syntaxErr *json.SyntaxError
		assert.ErrorAs(t, err, &syntaxErr)
		assert.Contains(t, err.Error(), "parse raw event")
	})

	t.Run("unparseable start_time", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"station":"OUN-01","instrument":"parsivel","start_time":"yesterday","interval_seconds":60,"nd":[[1]]}`)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		var parseErr *time.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})
}

func TestBuildDistribution_Profile(t *testing.T) {
	rec := testRecord(t)
	rec.Scattered = map[string]Series{dsd.FieldKdp: {0.1, 0.2, 0.3, 0.4}}

	d, err := BuildDistribution(rec, dsd.StandardPressureMb)
	require.NoError(t, err)

	assert.Equal(t, dsd.ProfileParsivel, d.Instrument)
	assert.Equal(t, 4, d.NumTimes())
	assert.Equal(t, 32, d.NumBins())
	start := float64(testStartTime.Unix())
	assert.Equal(t, []float64{start, start + 60, start + 120, start + 180}, d.Time.Data)
	assert.Nil(t, d.Velocity)

	kdp, ok := d.Fields.Scattered[dsd.FieldKdp]
	require.True(t, ok)
	assert.Equal(t, "deg km^-1", kdp.Units)
}

func TestBuildDistribution_CustomGeometry(t *testing.T) {
	rec := RawDSDRecord{
		Station:         testStation,
		Instrument:      "cloud-probe",
		StartTime:       testStartTime,
		IntervalSeconds: 10,
		Diameter:        Series{0.5, 1.5, 2.5},
		Spread:          Series{1, 1, 1},
		BinEdges:        Series{0, 1, 2, 3},
		Nd:              []Series{{10, 5, 1}},
	}

	d, err := BuildDistribution(rec, dsd.StandardPressureMb)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, d.Diameter.Data)
	assert.Equal(t, [][]float64{{10, 5, 1}}, d.Nd.Data)
}

func TestBuildDistribution_Errors(t *testing.T) {
	t.Run("unknown instrument without geometry", func(t *testing.T) {
		rec := testRecord(t)
		rec.Instrument = "mystery"
		_, err := BuildDistribution(rec, dsd.StandardPressureMb)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.Contains(t, err.Error(), "mystery")
	})

	t.Run("partial custom geometry", func(t *testing.T) {
		rec := testRecord(t)
		rec.Diameter = Series{1, 2}
		_, err := BuildDistribution(rec, dsd.StandardPressureMb)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("row width mismatch", func(t *testing.T) {
		rec := testRecord(t)
		rec.Nd[1] = rec.Nd[1][:10]
		_, err := BuildDistribution(rec, dsd.StandardPressureMb)
		assert.ErrorIs(t, err, dsd.ErrInvalidGeometry)
	})

	t.Run("counts without sampling area", func(t *testing.T) {
		rec := testRecord(t)
		rec.Instrument = dsd.ProfileJWD
		rec.Nd = nil
		rec.Counts = []Series{make(Series, 20)}
		_, err := BuildDistribution(rec, dsd.StandardPressureMb)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.Contains(t, err.Error(), "sampling area")
	})

	t.Run("scattered length mismatch", func(t *testing.T) {
		rec := testRecord(t)
		rec.Scattered = map[string]Series{dsd.FieldZh: {30}}
		_, err := BuildDistribution(rec, dsd.StandardPressureMb)
		assert.ErrorIs(t, err, dsd.ErrInvalidGeometry)
	})
}

func TestBuildDistribution_Counts(t *testing.T) {
	p, err := dsd.LookupProfile(dsd.ProfileParsivel)
	require.NoError(t, err)

	counts := make(Series, p.NumBins())
	counts[5], counts[9], counts[14] = 40, 25, 3

	rec := RawDSDRecord{
		Station:         testStation,
		Instrument:      dsd.ProfileParsivel,
		StartTime:       testStartTime,
		IntervalSeconds: 60,
		Counts:          []Series{counts},
	}

	const pressure = 850.0
	d, err := BuildDistribution(rec, pressure)
	require.NoError(t, err)

	velocity := make([]float64, p.NumBins())
	for i, diam := range p.Diameter() {
		velocity[i] = dsd.FallSpeed(diam, pressure)
	}
	want, err := dsd.NdFromCounts(counts, velocity, p.SamplingArea(), p.Spread(), 60)
	require.NoError(t, err)

	assert.InDeltaSlice(t, want, d.Nd.Data[0], 1e-9)
	assert.Positive(t, d.Nd.Data[0][9])
	assert.Zero(t, d.Nd.Data[0][0])
}

func TestParameterize(t *testing.T) {
	fake := freezeClock(t)

	rec := testRecord(t)
	rec.Scattered = map[string]Series{dsd.FieldKdp: {0.2, 0.4, 0.1, 0.8}}

	out, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.ID, "parsivel-"))
	assert.Equal(t, testStation, out.Station)
	assert.Equal(t, Geo{Lat: 35.18, Lon: -97.44}, out.Geo)
	assert.Equal(t, fake.Now().UTC(), out.ProcessedAt)
	assert.Equal(t, 4, out.NumSteps())
	assert.Len(t, out.Diameter, 32)

	for _, name := range []string{
		dsd.FieldNt, dsd.FieldW, dsd.FieldD0, dsd.FieldNw, dsd.FieldDmax, dsd.FieldDm,
		dsd.FieldN0, dsd.FieldMu, dsd.FieldLambda, dsd.FieldRainRate, dsd.FieldKdp,
		dsd.FieldMuUA98, dsd.FieldLambdaUA98, dsd.FieldN0UA98, dsd.FieldD0UA98,
	} {
		f, ok := out.Fields[name]
		require.True(t, ok, "missing field %s", name)
		assert.Len(t, f.Data, 4, name)
	}

	// The empty step keeps zero sentinels and NaN shape parameters.
	assert.Zero(t, out.Fields[dsd.FieldNt].Data[2])
	assert.Zero(t, out.Fields[dsd.FieldD0].Data[2])
	assert.Zero(t, out.Fields[dsd.FieldRainRate].Data[2])
	assert.True(t, math.IsNaN(out.Fields[dsd.FieldMu].Data[2]))
	assert.True(t, math.IsNaN(out.Fields[dsd.FieldLambda].Data[2]))
	assert.Equal(t, dsd.MuUnfittable.String(), out.MuStatus[2])
	assert.Equal(t, dsd.Unclassified.String(), out.RainType[2])

	for _, step := range []int{0, 1, 3} {
		assert.Positive(t, out.Fields[dsd.FieldRainRate].Data[step], "rain rate step %d", step)
		assert.Positive(t, out.Fields[dsd.FieldD0].Data[step], "D0 step %d", step)
		assert.NotEqual(t, dsd.Unclassified.String(), out.RainType[step], "rain type step %d", step)
	}
	assert.Len(t, out.MuStatus, 4)
	assert.Len(t, out.RainType, 4)
	assert.Len(t, out.RainTypeIslam, 4)
	assert.Nil(t, out.RainTypeAtlas)

	// Sampled gammas are exact, so the 2-4-6 moment fit recovers mu.
	assert.InDelta(t, 3, out.Fields[dsd.FieldMuUA98].Data[0], 0.3)
	assert.True(t, math.IsNaN(out.Fields[dsd.FieldMuUA98].Data[2]))

	require.Len(t, out.Relationships, 1)
	assert.Equal(t, dsd.RelationshipRKdp, out.Relationships[0].Name)
	assert.Empty(t, out.Relationships[0].Error)
	assert.Len(t, out.Relationships[0].Coefficients, 2)
	assert.Equal(t, 3, out.Relationships[0].N)
}

func TestParameterize_RecordsRelationshipFailure(t *testing.T) {
	freezeClock(t)

	rec := testRecord(t)
	rec.Scattered = map[string]Series{dsd.FieldZh: {math.NaN(), math.NaN(), math.NaN(), 40}}

	out, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
	require.NoError(t, err)

	require.Len(t, out.Relationships, 1)
	assert.Equal(t, dsd.RelationshipRZh, out.Relationships[0].Name)
	assert.Contains(t, out.Relationships[0].Error, "insufficient")
	assert.Nil(t, out.Relationships[0].Coefficients)
}

func TestParameterize_DropFilter(t *testing.T) {
	freezeClock(t)

	opts := DefaultProcessOptions()
	opts.DropMaxMM = 2

	out, err := Parameterize(context.Background(), testRecord(t), opts)
	require.NoError(t, err)
	for step, v := range out.Fields[dsd.FieldDmax].Data {
		assert.Less(t, v, 2.0, "Dmax step %d", step)
	}
}

func TestParameterize_KeepsReportedRainRate(t *testing.T) {
	freezeClock(t)

	rec := testRecord(t)
	rec.RainRate = Series{5, 6, 0, 7}

	out, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
	require.NoError(t, err)
	assert.Equal(t, Series{5, 6, 0, 7}, out.Fields[dsd.FieldRainRate].Data)
}

func TestParameterize_SecondaryRainTypes(t *testing.T) {
	freezeClock(t)

	tests := []struct {
		name      string
		rainRate  Series
		velocity  Series
		wantIslam []string
		wantAtlas []string
	}{
		{
			name:      "light steady rain",
			rainRate:  Series{1, 1.5, 0, 2},
			wantIslam: []string{"stratiform", "stratiform", "stratiform", "stratiform"},
		},
		{
			name:      "burst at start",
			rainRate:  Series{30, 1.5, 0, 2},
			wantIslam: []string{"convective", "convective", "convective", "stratiform"},
		},
		{
			name:      "with vertical velocity",
			rainRate:  Series{1, 1.5, 0, 2},
			velocity:  Series{2.5, 0.2, 0, 1.5},
			wantIslam: []string{"stratiform", "stratiform", "stratiform", "stratiform"},
			wantAtlas: []string{"convective", "stratiform", "stratiform", "convective"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord(t)
			rec.RainRate = tt.rainRate
			rec.VerticalVelocity = tt.velocity

			out, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.wantIslam, out.RainTypeIslam)
			assert.Equal(t, tt.wantAtlas, out.RainTypeAtlas)
		})
	}
}

func TestParameterize_PressureLowersRainRate(t *testing.T) {
	freezeClock(t)

	sea, err := Parameterize(context.Background(), testRecord(t), DefaultProcessOptions())
	require.NoError(t, err)

	rec := testRecord(t)
	rec.AirPressureMb = 700
	high, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
	require.NoError(t, err)

	ratio := high.Fields[dsd.FieldRainRate].Data[0] / sea.Fields[dsd.FieldRainRate].Data[0]
	assert.InDelta(t, math.Pow(0.7, 0.4), ratio, 1e-9)
}

func TestParameterize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parameterize(ctx, testRecord(t), DefaultProcessOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateID(t *testing.T) {
	a := generateID(testStation, "parsivel", testStartTime, 10)
	b := generateID(testStation, "parsivel", testStartTime, 10)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "parsivel-"))
	assert.Len(t, a, len("parsivel-")+16)

	assert.NotEqual(t, a, generateID(testStation, "parsivel", testStartTime, 11))
	assert.NotEqual(t, a, generateID("OUN-02", "parsivel", testStartTime, 10))
	assert.NotEqual(t, a, generateID(testStation, "parsivel", testStartTime.Add(time.Minute), 10))

	// The same instant in another zone yields the same ID.
	local := testStartTime.In(time.FixedZone("CDT", -5*3600))
	assert.Equal(t, a, generateID(testStation, "parsivel", local, 10))

	assert.Len(t, generateID(testStation, "", testStartTime, 10), 16)
}

func TestParseAndParameterize_RoundTrip(t *testing.T) {
	freezeClock(t)

	rec := testRecord(t)
	parsed, err := ParseRawEvent(rawEventFor(t, rec))
	require.NoError(t, err)

	fromWire, err := Parameterize(context.Background(), parsed, DefaultProcessOptions())
	require.NoError(t, err)
	direct, err := Parameterize(context.Background(), rec, DefaultProcessOptions())
	require.NoError(t, err)

	assert.Equal(t, direct.ID, fromWire.ID)
	assert.InDeltaSlice(t, direct.Fields[dsd.FieldD0].Data, fromWire.Fields[dsd.FieldD0].Data, 1e-12)
}
