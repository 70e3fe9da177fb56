// Package mockdata generates synthetic disdrometer records drawn from
// normalized gamma distributions. The same generator feeds the genmock
// fixtures, the pipeline tests and the Kafka integration test.
package mockdata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
)

// Station is a simulated instrument deployment.
type Station struct {
	ID         string
	Instrument string
	Lat, Lon   float64
	SiteName   string
	State      string
}

// Stations are the deployments records are spread across. The Greeley
// site has no coordinates so it exercises forward geocoding.
var Stations = []Station{
	{ID: "OUN-01", Instrument: dsd.ProfileParsivel, Lat: 35.1812, Lon: -97.4395, SiteName: "Norman", State: "OK"},
	{ID: "HSV-02", Instrument: dsd.ProfileJWD, Lat: 34.7254, Lon: -86.6456, SiteName: "Huntsville", State: "AL"},
	{ID: "GXY-03", Instrument: dsd.Profile2DVD, SiteName: "Greeley", State: "CO"},
}

// Options controls the generated data set.
type Options struct {
	Records         int
	Steps           int
	Start           time.Time
	IntervalSeconds float64
	Seed            uint64

	// EmptyFraction is the probability that a step has no drops.
	EmptyFraction float64
}

// DefaultOptions returns a small reproducible data set covering every
// station.
func DefaultOptions() Options {
	return Options{
		Records:         9,
		Steps:           12,
		Start:           time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
		Seed:            20240426,
		EmptyFraction:   0.1,
	}
}

// Truth is the gamma parameter set a step was drawn from. Empty steps have
// Nw == 0.
type Truth struct {
	D0 float64 `json:"d0"`
	Nw float64 `json:"nw"`
	Mu float64 `json:"mu"`
}

// Record is a generated raw record with the parameters behind each step.
type Record struct {
	Raw   domain.RawDSDRecord `json:"raw"`
	Truth []Truth             `json:"truth"`
}

// Generate builds opts.Records records cycling through Stations.
// Parsivel records carry raw counts, the others Nd. Every record also
// carries a synthetic Kdp series following R = 40.5*Kdp^0.85.
func Generate(opts Options) ([]Record, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	out := make([]Record, 0, opts.Records)

	for i := 0; i < opts.Records; i++ {
		st := Stations[i%len(Stations)]
		p, err := dsd.LookupProfile(st.Instrument)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.ID, err)
		}

		span := time.Duration(float64(opts.Steps)*opts.IntervalSeconds) * time.Second
		rec := domain.RawDSDRecord{
			Station:         st.ID,
			Instrument:      st.Instrument,
			Lat:             st.Lat,
			Lon:             st.Lon,
			SiteName:        st.SiteName,
			State:           st.State,
			StartTime:       opts.Start.Add(time.Duration(i/len(Stations)) * span),
			IntervalSeconds: opts.IntervalSeconds,
		}

		truth := make([]Truth, opts.Steps)
		nd := make([][]float64, opts.Steps)
		for t := range nd {
			if rng.Float64() < opts.EmptyFraction {
				nd[t] = make([]float64, p.NumBins())
				continue
			}
			truth[t] = Truth{
				D0: 0.8 + 1.4*rng.Float64(),
				Nw: math.Pow(10, 2.8+1.7*rng.Float64()),
				Mu: 8 * rng.Float64(),
			}
			nd[t] = dsd.NewGammaPSD(truth[t].D0, truth[t].Nw, truth[t].Mu).Sample(p.Diameter())
		}

		kdp, err := syntheticKdp(p, nd, opts.IntervalSeconds, rng)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.ID, err)
		}
		rec.Scattered = map[string]domain.Series{dsd.FieldKdp: kdp}

		if p.HasSamplingArea() {
			rec.Counts = toCounts(p, nd, opts.IntervalSeconds)
		} else {
			rec.Nd = make([]domain.Series, len(nd))
			for t, row := range nd {
				rec.Nd[t] = row
			}
		}

		out = append(out, Record{Raw: rec, Truth: truth})
	}
	return out, nil
}

// toCounts inverts Nd = 1e6*C / (A*v*dD*dt) at standard pressure and
// rounds to whole drops.
func toCounts(p dsd.Profile, nd [][]float64, dt float64) []domain.Series {
	diameter, spread, area := p.Diameter(), p.Spread(), p.SamplingArea()
	out := make([]domain.Series, len(nd))
	for t, row := range nd {
		counts := make(domain.Series, len(row))
		for i, n := range row {
			v := dsd.FallSpeed(diameter[i], dsd.StandardPressureMb)
			counts[i] = math.Round(n * area[i] * v * spread[i] * dt / 1e6)
		}
		out[t] = counts
	}
	return out
}

func syntheticKdp(p dsd.Profile, nd [][]float64, dt float64, rng *rand.Rand) (domain.Series, error) {
	times := make([]float64, len(nd))
	for t := range times {
		times[t] = float64(t) * dt
	}
	d, err := dsd.New(p.Source(times, nd))
	if err != nil {
		return nil, err
	}
	d.CalculateRainRate()

	kdp := make(domain.Series, len(nd))
	for t, r := range d.Fields.RainRate.Data {
		if r <= 0 {
			continue
		}
		noise := 1 + 0.1*rng.NormFloat64()
		kdp[t] = math.Pow(r/40.5, 1/0.85) * math.Max(noise, 0.5)
	}
	return kdp, nil
}
