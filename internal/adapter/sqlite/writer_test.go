package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsd.db")
	w, err := NewWriter(context.Background(), path, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func testRecord() domain.ParameterizedDSD {
	start := time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	return domain.ParameterizedDSD{
		ID:              "parsivel-0123456789abcdef",
		Station:         "OUN-01",
		Instrument:      "parsivel",
		Geo:             domain.Geo{Lat: 35.18, Lon: -97.44},
		StartTime:       start,
		IntervalSeconds: 60,
		Time:            domain.Series{float64(start.Unix()), float64(start.Unix() + 60)},
		Fields: map[string]domain.Field{
			"Nt":        {Data: domain.Series{812.5, 0}},
			"D0":        {Data: domain.Series{1.21, 0}},
			"mu":        {Data: domain.Series{3.4, math.NaN()}},
			"rain_rate": {Data: domain.Series{6.2, 0}},
			"mu_ua98":   {Data: domain.Series{2.9, math.NaN()}},
		},
		MuStatus:      []string{"converged", "unfittable"},
		RainType:      []string{"stratiform", "unclassified"},
		RainTypeIslam: []string{"stratiform", "stratiform"},
		Relationships: []domain.RelationshipFit{{Name: "R-Kdp", Coefficients: []float64{40.5, 0.85}, N: 1}},
		ProcessedAt:   start.Add(10 * time.Minute),
	}
}

func TestNewWriter_InvalidPath(t *testing.T) {
	_, err := NewWriter(context.Background(), filepath.Join(t.TempDir(), "missing", "dsd.db"),
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestWriter_LoadBatch(t *testing.T) {
	w := newTestWriter(t)
	rec := testRecord()

	require.NoError(t, w.LoadBatch(context.Background(), []domain.ParameterizedDSD{rec}))

	var (
		station, start, relationships string
		steps                         int
		lat                           sql.NullFloat64
		address                       sql.NullString
	)
	require.NoError(t, w.db.QueryRow(
		`SELECT station, start_time, steps, lat, formatted_address, relationships FROM dsd_records WHERE id = ?`, rec.ID,
	).Scan(&station, &start, &steps, &lat, &address, &relationships))
	assert.Equal(t, "OUN-01", station)
	assert.Equal(t, "2024-04-26T15:00:00Z", start)
	assert.Equal(t, 2, steps)
	assert.True(t, lat.Valid)
	assert.InDelta(t, 35.18, lat.Float64, 1e-12)
	assert.False(t, address.Valid)
	assert.JSONEq(t, `[{"name":"R-Kdp","coefficients":[40.5,0.85],"n":1}]`, relationships)

	var (
		sampleTime, status, rainType, islam string
		atlas                               sql.NullString
		d0, mu, nw                          sql.NullFloat64
	)
	require.NoError(t, w.db.QueryRow(
		`SELECT sample_time, d0, mu, nw, mu_status, rain_type, rain_type_islam, rain_type_atlas
		FROM dsd_samples WHERE id = ? AND step = 1`, rec.ID,
	).Scan(&sampleTime, &d0, &mu, &nw, &status, &rainType, &islam, &atlas))
	assert.Equal(t, "2024-04-26T15:01:00Z", sampleTime)
	assert.True(t, d0.Valid)
	assert.Zero(t, d0.Float64)
	assert.False(t, mu.Valid, "NaN is stored as NULL")
	assert.False(t, nw.Valid, "missing field is stored as NULL")
	assert.Equal(t, "unfittable", status)
	assert.Equal(t, "unclassified", rainType)
	assert.Equal(t, "stratiform", islam)
	assert.False(t, atlas.Valid, "no vertical velocity means no Atlas class")

	var muUA98 float64
	require.NoError(t, w.db.QueryRow(`SELECT mu_ua98 FROM dsd_samples WHERE id = ? AND step = 0`, rec.ID).Scan(&muUA98))
	assert.InDelta(t, 2.9, muUA98, 1e-12)
}

func TestWriter_LoadBatch_ReplayUpserts(t *testing.T) {
	w := newTestWriter(t)
	rec := testRecord()
	ctx := context.Background()

	require.NoError(t, w.LoadBatch(ctx, []domain.ParameterizedDSD{rec}))

	rec.Fields["D0"] = domain.Field{Data: domain.Series{1.35, 0}}
	rec.GeoSource = domain.GeoSourceReverse
	require.NoError(t, w.LoadBatch(ctx, []domain.ParameterizedDSD{rec}))

	var records, samples int
	require.NoError(t, w.db.QueryRow(`SELECT COUNT(*) FROM dsd_records`).Scan(&records))
	require.NoError(t, w.db.QueryRow(`SELECT COUNT(*) FROM dsd_samples`).Scan(&samples))
	assert.Equal(t, 1, records)
	assert.Equal(t, 2, samples)

	var d0 float64
	var source string
	require.NoError(t, w.db.QueryRow(`SELECT d0 FROM dsd_samples WHERE id = ? AND step = 0`, rec.ID).Scan(&d0))
	require.NoError(t, w.db.QueryRow(`SELECT geo_source FROM dsd_records WHERE id = ?`, rec.ID).Scan(&source))
	assert.InDelta(t, 1.35, d0, 1e-12)
	assert.Equal(t, domain.GeoSourceReverse, source)
}

func TestWriter_LoadBatch_Empty(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.LoadBatch(context.Background(), nil))
}

func TestWriter_LoadBatch_CancelledContext(t *testing.T) {
	w := newTestWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, w.LoadBatch(ctx, []domain.ParameterizedDSD{testRecord()}))

	var records int
	require.NoError(t, w.db.QueryRow(`SELECT COUNT(*) FROM dsd_records`).Scan(&records))
	assert.Zero(t, records)
}

func TestEpochToRFC3339(t *testing.T) {
	assert.Equal(t, "2024-04-26T15:00:00Z", epochToRFC3339(1714143600))
	assert.Equal(t, "2024-04-26T15:00:00.5Z", epochToRFC3339(1714143600.5))
}
