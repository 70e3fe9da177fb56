//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/mockdata"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// TestSmoke_Stations resolves every simulated deployment both ways. Sites
// without coordinates only get the forward lookup.
func TestSmoke_Stations(t *testing.T) {
	c := smokeClient(t)

	for _, st := range mockdata.Stations {
		t.Run(st.ID, func(t *testing.T) {
			fwd, err := c.ForwardGeocode(context.Background(), st.SiteName, st.State)
			require.NoError(t, err)
			assert.Contains(t, fwd.FormattedAddress, st.SiteName)
			assert.Greater(t, fwd.Confidence, 0.5)

			if st.Lat == 0 && st.Lon == 0 {
				return
			}
			// Instruments sit on campuses near, not at, the place centroid.
			assert.InDelta(t, st.Lat, fwd.Lat, 0.2)
			assert.InDelta(t, st.Lon, fwd.Lon, 0.2)

			rev, err := c.ReverseGeocode(context.Background(), st.Lat, st.Lon)
			require.NoError(t, err)
			assert.NotEmpty(t, rev.PlaceName)
		})
	}
}

func TestSmoke_ForwardGeocode_LowRelevance(t *testing.T) {
	c := smokeClient(t)

	// Mapbox's fuzzy matching may still return results for nonsense queries,
	// so we verify the client handles any response gracefully (no error).
	_, err := c.ForwardGeocode(context.Background(), "XYZNONEXISTENT99", "ZZ")
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	// First call: cache miss → real API call.
	r1, err := cached.ForwardGeocode(context.Background(), "Greeley", "CO")
	require.NoError(t, err)
	assert.Contains(t, r1.FormattedAddress, "Greeley")

	// Second call: cache hit → no API call.
	r2, err := cached.ForwardGeocode(context.Background(), "Greeley", "CO")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
