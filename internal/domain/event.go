package domain

import (
	"context"
	"time"
)

// RawDSDRecord is the JSON document published by disdrometer collectors.
// A record carries either Nd (concentrations, m^-3 mm^-1) or Counts (raw
// drops per bin per interval), one row per time step.
type RawDSDRecord struct {
	Station    string `json:"station"`
	Instrument string `json:"instrument"`

	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	SiteName string  `json:"site_name,omitempty"`
	State    string  `json:"state,omitempty"`

	StartTime       time.Time `json:"start_time"`
	IntervalSeconds float64   `json:"interval_seconds"`

	Nd     []Series `json:"nd,omitempty"`
	Counts []Series `json:"counts,omitempty"`

	// Custom bin geometry for instruments without a built-in profile.
	Diameter Series `json:"diameter,omitempty"`
	Spread   Series `json:"spread,omitempty"`
	BinEdges Series `json:"bin_edges,omitempty"`

	Velocity      Series            `json:"velocity,omitempty"`
	RainRate      Series            `json:"rain_rate,omitempty"`
	AirPressureMb float64           `json:"air_pressure_mb,omitempty"`
	Scattered     map[string]Series `json:"scattered,omitempty"`

	// VerticalVelocity is the per-step hydrometeor vertical velocity in
	// m s^-1 from a co-located profiler, used for the Atlas classification.
	VerticalVelocity Series `json:"vertical_velocity,omitempty"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat,omitempty" msgpack:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty" msgpack:"lon,omitempty"`
}

// Site describes where the instrument is deployed.
type Site struct {
	Name  string `json:"name,omitempty" msgpack:"name,omitempty"`
	State string `json:"state,omitempty" msgpack:"state,omitempty"`
}

// Field is one derived or supplied quantity with its metadata.
type Field struct {
	Data         Series `json:"data" msgpack:"data"`
	Units        string `json:"units" msgpack:"units"`
	LongName     string `json:"long_name" msgpack:"long_name"`
	StandardName string `json:"standard_name,omitempty" msgpack:"standard_name,omitempty"`
}

// RelationshipFit is the outcome of one rainfall relationship fit. Error is
// set instead of Coefficients when the fit failed.
type RelationshipFit struct {
	Name         string    `json:"name" msgpack:"name"`
	Coefficients []float64 `json:"coefficients,omitempty" msgpack:"coefficients,omitempty"`
	N            int       `json:"n" msgpack:"n"`
	Error        string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// ParameterizedDSD is the enriched record written to the sink.
type ParameterizedDSD struct {
	ID         string `json:"id" msgpack:"id"`
	Station    string `json:"station" msgpack:"station"`
	Instrument string `json:"instrument" msgpack:"instrument"`
	Geo        Geo    `json:"geo,omitempty" msgpack:"geo"`
	Site       Site   `json:"site,omitempty" msgpack:"site"`

	StartTime       time.Time `json:"start_time" msgpack:"start_time"`
	IntervalSeconds float64   `json:"interval_seconds" msgpack:"interval_seconds"`
	Time            Series    `json:"time" msgpack:"time"`
	Diameter        Series    `json:"diameter" msgpack:"diameter"`

	Fields        map[string]Field  `json:"fields" msgpack:"fields"`
	MuStatus      []string          `json:"mu_status" msgpack:"mu_status"`
	RainType      []string          `json:"rain_type" msgpack:"rain_type"`
	RainTypeIslam []string          `json:"rain_type_islam" msgpack:"rain_type_islam"`
	RainTypeAtlas []string          `json:"rain_type_atlas,omitempty" msgpack:"rain_type_atlas,omitempty"`
	Relationships []RelationshipFit `json:"relationships,omitempty" msgpack:"relationships,omitempty"`

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty" msgpack:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty" msgpack:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty" msgpack:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty" msgpack:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"

	ProcessedAt time.Time `json:"processed_at" msgpack:"processed_at"`
}

// NumSteps returns the number of time steps in the record.
func (p ParameterizedDSD) NumSteps() int { return len(p.Time) }

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
