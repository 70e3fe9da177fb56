package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
)

// DSDTransformer implements Transformer by parameterizing each record and
// optionally geocoding its site.
type DSDTransformer struct {
	geocoder domain.Geocoder
	opts     domain.ProcessOptions
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewTransformer creates a DSDTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, opts domain.ProcessOptions, metrics *observability.Metrics, logger *slog.Logger) *DSDTransformer {
	return &DSDTransformer{
		geocoder: geocoder,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

func (t *DSDTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.ParameterizedDSD, error) {
	rec, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.ParameterizedDSD{}, err
	}

	start := time.Now()
	out, err := domain.Parameterize(ctx, rec, t.opts)
	if err != nil {
		return domain.ParameterizedDSD{}, err
	}
	t.observe(out, time.Since(start))

	out = domain.EnrichWithGeocoding(ctx, out, t.geocoder, t.logger)

	t.logger.Debug("record parameterized",
		"record_id", out.ID,
		"station", out.Station,
		"instrument", out.Instrument,
		"steps", out.NumSteps(),
	)
	return out, nil
}

func (t *DSDTransformer) observe(out domain.ParameterizedDSD, elapsed time.Duration) {
	t.metrics.ParameterizeDuration.Observe(elapsed.Seconds())
	t.metrics.SamplesParameterized.Add(float64(out.NumSteps()))

	if nt, ok := out.Fields[dsd.FieldNt]; ok {
		for _, v := range nt.Data {
			if v == 0 {
				t.metrics.DegenerateSamples.Inc()
			}
		}
	}
	for _, status := range out.MuStatus {
		t.metrics.MuFits.WithLabelValues(status).Inc()
	}
	for _, r := range out.Relationships {
		outcome := "success"
		if r.Error != "" {
			outcome = "error"
			t.logger.Warn("relationship fit failed", "record_id", out.ID, "relationship", r.Name, "error", r.Error)
		}
		t.metrics.RelationshipFits.WithLabelValues(r.Name, outcome).Inc()
	}
}
