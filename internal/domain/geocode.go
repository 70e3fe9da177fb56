package domain

import (
	"context"
	"log/slog"
)

// Geocoding outcomes recorded in ParameterizedDSD.GeoSource.
const (
	GeoSourceForward  = "forward"
	GeoSourceReverse  = "reverse"
	GeoSourceOriginal = "original"
	GeoSourceFailed   = "failed"
)

// EnrichWithGeocoding resolves the instrument site. Stations that report
// coordinates get reverse-geocoded place details; stations that only report
// a site name and state get forward-geocoded coordinates. If geocoder is nil
// the record is returned unchanged, and a failed lookup only sets GeoSource.
func EnrichWithGeocoding(ctx context.Context, rec ParameterizedDSD, geocoder Geocoder, logger *slog.Logger) ParameterizedDSD {
	if geocoder == nil {
		return rec
	}

	hasCoords := rec.Geo.Lat != 0 || rec.Geo.Lon != 0
	hasName := rec.Site.Name != "" && rec.Site.State != ""

	if !hasCoords && hasName {
		result, err := geocoder.ForwardGeocode(ctx, rec.Site.Name, rec.Site.State)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"record_id", rec.ID,
				"station", rec.Station,
				"site", rec.Site.Name,
				"state", rec.Site.State,
				"error", err,
			)
			rec.GeoSource = GeoSourceFailed
			return rec
		}
		if result.Lat != 0 || result.Lon != 0 {
			rec.Geo = Geo{Lat: result.Lat, Lon: result.Lon}
			rec.applyGeocoding(result, GeoSourceForward)
			return rec
		}
		rec.GeoSource = GeoSourceOriginal
		return rec
	}

	if hasCoords {
		result, err := geocoder.ReverseGeocode(ctx, rec.Geo.Lat, rec.Geo.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"record_id", rec.ID,
				"station", rec.Station,
				"lat", rec.Geo.Lat,
				"lon", rec.Geo.Lon,
				"error", err,
			)
			rec.GeoSource = GeoSourceFailed
			return rec
		}
		if result.FormattedAddress != "" {
			rec.applyGeocoding(result, GeoSourceReverse)
			return rec
		}
	}

	rec.GeoSource = GeoSourceOriginal
	return rec
}

func (p *ParameterizedDSD) applyGeocoding(result GeocodingResult, source string) {
	p.FormattedAddress = result.FormattedAddress
	p.PlaceName = result.PlaceName
	p.GeoConfidence = result.Confidence
	p.GeoSource = source
}
