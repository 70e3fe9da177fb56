// Package sqlite archives parameterized records into a local SQLite
// database, one row per record and one row per time step.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
	_ "modernc.org/sqlite"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS dsd_records (
	id                TEXT PRIMARY KEY,
	station           TEXT NOT NULL,
	instrument        TEXT NOT NULL,
	start_time        TEXT NOT NULL,
	interval_seconds  REAL NOT NULL,
	steps             INTEGER NOT NULL,
	lat               REAL,
	lon               REAL,
	formatted_address TEXT,
	geo_source        TEXT,
	relationships     TEXT,
	processed_at      TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS dsd_samples (
	id              TEXT NOT NULL REFERENCES dsd_records(id) ON DELETE CASCADE,
	step            INTEGER NOT NULL,
	sample_time     TEXT NOT NULL,
	nt              REAL,
	w               REAL,
	d0              REAL,
	nw              REAL,
	dmax            REAL,
	dm              REAL,
	n0              REAL,
	mu              REAL,
	lambda          REAL,
	rain_rate       REAL,
	mu_ua98         REAL,
	mu_status       TEXT,
	rain_type       TEXT,
	rain_type_islam TEXT,
	rain_type_atlas TEXT,
	PRIMARY KEY (id, step)
)`,
	`CREATE INDEX IF NOT EXISTS idx_dsd_records_station_start ON dsd_records (station, start_time)`,
}

const upsertRecord = `
INSERT INTO dsd_records (id, station, instrument, start_time, interval_seconds, steps, lat, lon,
	formatted_address, geo_source, relationships, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	lat = excluded.lat,
	lon = excluded.lon,
	formatted_address = excluded.formatted_address,
	geo_source = excluded.geo_source,
	relationships = excluded.relationships,
	processed_at = excluded.processed_at`

const upsertSample = `
INSERT INTO dsd_samples (id, step, sample_time, nt, w, d0, nw, dmax, dm, n0, mu, lambda, rain_rate,
	mu_ua98, mu_status, rain_type, rain_type_islam, rain_type_atlas)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id, step) DO UPDATE SET
	nt = excluded.nt,
	w = excluded.w,
	d0 = excluded.d0,
	nw = excluded.nw,
	dmax = excluded.dmax,
	dm = excluded.dm,
	n0 = excluded.n0,
	mu = excluded.mu,
	lambda = excluded.lambda,
	rain_rate = excluded.rain_rate,
	mu_ua98 = excluded.mu_ua98,
	mu_status = excluded.mu_status,
	rain_type = excluded.rain_type,
	rain_type_islam = excluded.rain_type_islam,
	rain_type_atlas = excluded.rain_type_atlas`

// sampleColumns are the per-step fields in upsertSample order.
var sampleColumns = []string{
	dsd.FieldNt, dsd.FieldW, dsd.FieldD0, dsd.FieldNw, dsd.FieldDmax,
	dsd.FieldDm, dsd.FieldN0, dsd.FieldMu, dsd.FieldLambda, dsd.FieldRainRate,
	dsd.FieldMuUA98,
}

// Writer implements pipeline.BatchLoader on top of SQLite. Replayed records
// overwrite their previous rows.
type Writer struct {
	db      *sql.DB
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter opens (creating if needed) the database at path and applies
// the schema.
func NewWriter(ctx context.Context, path string, metrics *observability.Metrics, logger *slog.Logger) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	logger.Info("sqlite sink ready", "path", path)
	return &Writer{db: db, metrics: metrics, logger: logger}, nil
}

// LoadBatch writes every record and its steps in one transaction.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.ParameterizedDSD) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	recStmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare record upsert: %w", err)
	}
	defer recStmt.Close()

	sampleStmt, err := tx.PrepareContext(ctx, upsertSample)
	if err != nil {
		return fmt.Errorf("prepare sample upsert: %w", err)
	}
	defer sampleStmt.Close()

	var rows int
	for i := range records {
		n, err := writeRecord(ctx, recStmt, sampleStmt, &records[i])
		if err != nil {
			return fmt.Errorf("record %s: %w", records[i].ID, err)
		}
		rows += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	w.metrics.SinkRowsWritten.Add(float64(rows))
	w.logger.Debug("batch archived", "records", len(records), "rows", rows)
	return nil
}

func writeRecord(ctx context.Context, recStmt, sampleStmt *sql.Stmt, rec *domain.ParameterizedDSD) (int, error) {
	var relationships sql.NullString
	if len(rec.Relationships) > 0 {
		data, err := json.Marshal(rec.Relationships)
		if err != nil {
			return 0, fmt.Errorf("encode relationships: %w", err)
		}
		relationships = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := recStmt.ExecContext(ctx,
		rec.ID,
		rec.Station,
		rec.Instrument,
		rec.StartTime.UTC().Format(time.RFC3339Nano),
		rec.IntervalSeconds,
		rec.NumSteps(),
		nullableCoord(rec.Geo.Lat, rec.Geo),
		nullableCoord(rec.Geo.Lon, rec.Geo),
		nullString(rec.FormattedAddress),
		nullString(rec.GeoSource),
		relationships,
		rec.ProcessedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return 0, fmt.Errorf("upsert record: %w", err)
	}

	args := make([]any, 0, 7+len(sampleColumns))
	for t, ts := range rec.Time {
		args = args[:0]
		args = append(args, rec.ID, t, epochToRFC3339(ts))
		for _, name := range sampleColumns {
			args = append(args, valueAt(rec.Fields, name, t))
		}
		args = append(args,
			stringAt(rec.MuStatus, t),
			stringAt(rec.RainType, t),
			stringAt(rec.RainTypeIslam, t),
			stringAt(rec.RainTypeAtlas, t),
		)

		if _, err := sampleStmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("upsert step %d: %w", t, err)
		}
	}
	return len(rec.Time), nil
}

// Close closes the underlying database.
func (w *Writer) Close() error {
	return w.db.Close()
}

// valueAt returns field name at step t, NULL when missing or not finite.
func valueAt(fields map[string]domain.Field, name string, t int) sql.NullFloat64 {
	f, ok := fields[name]
	if !ok || t >= len(f.Data) {
		return sql.NullFloat64{}
	}
	v := f.Data[t]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func stringAt(s []string, t int) sql.NullString {
	if t >= len(s) {
		return sql.NullString{}
	}
	return sql.NullString{String: s[t], Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableCoord(v float64, g domain.Geo) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: g.Lat != 0 || g.Lon != 0}
}

func epochToRFC3339(sec float64) string {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC().Format(time.RFC3339Nano)
}
