package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves instrument sites.
type Geocoder interface {
	// ForwardGeocode converts a site name and state to coordinates.
	ForwardGeocode(ctx context.Context, name, state string) (GeocodingResult, error)

	// ReverseGeocode converts site coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
