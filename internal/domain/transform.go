package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
)

// ErrInvalidRecord is returned when a raw record is structurally unusable.
var ErrInvalidRecord = errors.New("invalid dsd record")

// scatteredUnits are the units attached to externally supplied radar fields.
var scatteredUnits = map[string]string{
	dsd.FieldZh:  "dBZ",
	dsd.FieldZdr: "dB",
	dsd.FieldKdp: "deg km^-1",
	dsd.FieldAi:  "dB km^-1",
}

// ProcessOptions controls the per-record processing steps.
type ProcessOptions struct {
	// DropMinMM and DropMaxMM bound the drop sizes kept before
	// parameterization. Zero disables the respective limit.
	DropMinMM float64
	DropMaxMM float64

	// AirPressureMb is used for fall speeds when a record does not carry
	// its own pressure.
	AirPressureMb float64

	Bringi dsd.BringiOptions
	Islam  dsd.IslamOptions

	// AtlasLimit is the vertical velocity in m s^-1 separating convective
	// from stratiform steps when a record carries vertical_velocity.
	AtlasLimit float64
}

// DefaultProcessOptions returns options with no drop filter, standard
// pressure and the published classifier thresholds.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		AirPressureMb: dsd.StandardPressureMb,
		Bringi:        dsd.DefaultBringiOptions,
		Islam:         dsd.DefaultIslamOptions,
		AtlasLimit:    dsd.DefaultAtlasLimit,
	}
}

func (o ProcessOptions) pressureFor(rec RawDSDRecord) float64 {
	if rec.AirPressureMb > 0 {
		return rec.AirPressureMb
	}
	if o.AirPressureMb > 0 {
		return o.AirPressureMb
	}
	return dsd.StandardPressureMb
}

// ParseRawEvent deserializes a RawEvent's value into a RawDSDRecord. When
// the record has no start_time the message timestamp is used.
func ParseRawEvent(raw RawEvent) (RawDSDRecord, error) {
	var rec RawDSDRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return RawDSDRecord{}, fmt.Errorf("parse raw event: %w: %w", err, ErrInvalidRecord)
	}

	rec.Station = strings.TrimSpace(rec.Station)
	rec.Instrument = strings.ToLower(strings.TrimSpace(rec.Instrument))
	if rec.StartTime.IsZero() {
		rec.StartTime = raw.Timestamp
	}
	rec.StartTime = rec.StartTime.UTC()

	if err := rec.validate(); err != nil {
		return RawDSDRecord{}, fmt.Errorf("parse raw event: %w", err)
	}
	return rec, nil
}

func (r RawDSDRecord) validate() error {
	switch {
	case r.Station == "":
		return fmt.Errorf("station is required: %w", ErrInvalidRecord)
	case r.Instrument == "":
		return fmt.Errorf("instrument is required: %w", ErrInvalidRecord)
	case r.StartTime.IsZero():
		return fmt.Errorf("start_time is required: %w", ErrInvalidRecord)
	case !(r.IntervalSeconds > 0):
		return fmt.Errorf("interval_seconds must be positive: %w", ErrInvalidRecord)
	case len(r.Nd) > 0 && len(r.Counts) > 0:
		return fmt.Errorf("nd and counts are mutually exclusive: %w", ErrInvalidRecord)
	case len(r.Nd) == 0 && len(r.Counts) == 0:
		return fmt.Errorf("one of nd or counts is required: %w", ErrInvalidRecord)
	case len(r.VerticalVelocity) > 0 && len(r.VerticalVelocity) != r.NumSteps():
		return fmt.Errorf("vertical_velocity has %d values for %d steps: %w", len(r.VerticalVelocity), r.NumSteps(), ErrInvalidRecord)
	}
	return nil
}

// NumSteps returns the number of time steps in the record.
func (r RawDSDRecord) NumSteps() int {
	if len(r.Counts) > 0 {
		return len(r.Counts)
	}
	return len(r.Nd)
}

// geometry is the resolved bin layout of a record.
type geometry struct {
	diameter, spread, binEdges []float64

	// area is the per-bin sampling area in mm^2, nil when unknown.
	area []float64
}

func resolveGeometry(rec RawDSDRecord) (geometry, error) {
	if len(rec.Diameter) > 0 {
		if len(rec.Spread) == 0 || len(rec.BinEdges) == 0 {
			return geometry{}, fmt.Errorf("custom geometry needs diameter, spread and bin_edges: %w", ErrInvalidRecord)
		}
		return geometry{diameter: rec.Diameter, spread: rec.Spread, binEdges: rec.BinEdges}, nil
	}

	p, err := dsd.LookupProfile(rec.Instrument)
	if err != nil {
		return geometry{}, fmt.Errorf("%w and no custom geometry supplied: %w", err, ErrInvalidRecord)
	}
	return geometry{
		diameter: p.Diameter(),
		spread:   p.Spread(),
		binEdges: p.BinEdges(),
		area:     p.SamplingArea(),
	}, nil
}

// BuildDistribution turns a parsed record into a validated
// DropSizeDistribution. Counts are converted to concentrations with the
// instrument sampling area and either the supplied velocities or fall
// speeds at pressureMb.
func BuildDistribution(rec RawDSDRecord, pressureMb float64) (*dsd.DropSizeDistribution, error) {
	geom, err := resolveGeometry(rec)
	if err != nil {
		return nil, fmt.Errorf("build distribution: %w", err)
	}

	n := rec.NumSteps()
	start := float64(rec.StartTime.UnixNano()) / float64(time.Second)
	times := make([]float64, n)
	for t := range times {
		times[t] = start + float64(t)*rec.IntervalSeconds
	}

	nd := fromSeriesRows(rec.Nd)
	if len(rec.Counts) > 0 {
		nd, err = countsToNd(rec, geom, pressureMb)
		if err != nil {
			return nil, fmt.Errorf("build distribution: %w", err)
		}
	}

	src := dsd.Source{
		Instrument: rec.Instrument,
		Time:       times,
		Diameter:   geom.diameter,
		Spread:     geom.spread,
		BinEdges:   geom.binEdges,
		Nd:         nd,
		Velocity:   rec.Velocity,
		RainRate:   rec.RainRate,
	}
	if len(rec.Scattered) > 0 {
		src.Scattered = make(map[string]dsd.Variable, len(rec.Scattered))
		for name, data := range rec.Scattered {
			src.Scattered[name] = dsd.Variable{Data: data, Units: scatteredUnits[name], LongName: name}
		}
	}

	d, err := dsd.New(src)
	if err != nil {
		return nil, fmt.Errorf("build distribution: %w", err)
	}
	return d, nil
}

func countsToNd(rec RawDSDRecord, geom geometry, pressureMb float64) ([][]float64, error) {
	if geom.area == nil {
		return nil, fmt.Errorf("instrument %q has no sampling area model, send nd instead of counts: %w", rec.Instrument, ErrInvalidRecord)
	}

	velocity := []float64(rec.Velocity)
	if len(velocity) == 0 {
		velocity = make([]float64, len(geom.diameter))
		for i, d := range geom.diameter {
			velocity[i] = dsd.FallSpeed(d, pressureMb)
		}
	}

	nd := make([][]float64, len(rec.Counts))
	for t, counts := range rec.Counts {
		row, err := dsd.NdFromCounts(counts, velocity, geom.area, geom.spread, rec.IntervalSeconds)
		if err != nil {
			return nil, fmt.Errorf("counts step %d: %w", t, err)
		}
		nd[t] = row
	}
	return nd, nil
}

// Parameterize runs the full DSD processing chain on a parsed record:
// optional drop-size filter, moment parameterization, the 2-4-6 moment
// gamma fit, rain rate, rain-type classification and rainfall
// relationship fits. Relationship failures are recorded on the result,
// never returned.
//
// RainType comes from Nw and D0 (Bringi et al. 2009) and RainTypeIslam
// from the rain rate series. RainTypeAtlas is only set when the record
// carries vertical_velocity.
func Parameterize(ctx context.Context, rec RawDSDRecord, opts ProcessOptions) (ParameterizedDSD, error) {
	pressure := opts.pressureFor(rec)

	d, err := BuildDistribution(rec, pressure)
	if err != nil {
		return ParameterizedDSD{}, err
	}

	if opts.DropMinMM > 0 || opts.DropMaxMM > 0 {
		d.FilterOnDropSize(opts.DropMinMM, opts.DropMaxMM)
	}

	if err := d.CalculateDSDParameterization(ctx); err != nil {
		return ParameterizedDSD{}, err
	}

	// An instrument-reported rain rate is kept as is.
	if d.Fields.RainRate == nil {
		if d.Velocity == nil {
			d.CalculateFallSpeed(pressure)
		}
		d.CalculateRainRate()
	}

	out := ParameterizedDSD{
		ID:              generateID(rec.Station, rec.Instrument, rec.StartTime, d.NumTimes()),
		Station:         rec.Station,
		Instrument:      rec.Instrument,
		Geo:             Geo{Lat: rec.Lat, Lon: rec.Lon},
		Site:            Site{Name: rec.SiteName, State: rec.State},
		StartTime:       rec.StartTime,
		IntervalSeconds: rec.IntervalSeconds,
		Time:            Series(d.Time.Data),
		Diameter:        Series(d.Diameter.Data),
		Fields:          make(map[string]Field),
		MuStatus:        make([]string, len(d.Fields.MuStatus)),
		ProcessedAt:     clock.Now().UTC(),
	}

	for name, v := range d.Fields.Map() {
		out.Fields[name] = Field{Data: Series(v.Data), Units: v.Units, LongName: v.LongName, StandardName: v.StandardName}
	}
	for name, v := range d.UlbrichAtlas().Fields() {
		out.Fields[name] = Field{Data: Series(v.Data), Units: v.Units, LongName: v.LongName}
	}
	for t, s := range d.Fields.MuStatus {
		out.MuStatus[t] = s.String()
	}

	out.RainType = rainTypeStrings(dsd.PartitionBringi2009(d.Fields.Nw.Data, d.Fields.D0.Data, opts.Bringi))
	out.RainTypeIslam = rainTypeStrings(dsd.PartitionIslam2012(d.Fields.RainRate.Data, opts.Islam))
	if len(rec.VerticalVelocity) > 0 {
		out.RainTypeAtlas = rainTypeStrings(dsd.PartitionAtlas2000(rec.VerticalVelocity, opts.AtlasLimit))
	}

	for _, r := range d.FitRelationships() {
		fit := RelationshipFit{Name: r.Name, Coefficients: r.Coefficients, N: r.N}
		if r.Err != nil {
			fit.Error = r.Err.Error()
		}
		out.Relationships = append(out.Relationships, fit)
	}

	return out, nil
}

func rainTypeStrings(types []dsd.RainType) []string {
	out := make([]string, len(types))
	for t, rt := range types {
		out[t] = rt.String()
	}
	return out
}

// generateID creates a deterministic record ID from station, instrument,
// start time and step count so replays upsert instead of duplicating.
func generateID(station, instrument string, start time.Time, steps int) string {
	input := fmt.Sprintf("%s|%s|%s|%d", station, instrument, start.UTC().Format(time.RFC3339Nano), steps)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if instrument == "" {
		return short
	}
	return instrument + "-" + short
}
