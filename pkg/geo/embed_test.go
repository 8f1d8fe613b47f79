package geo_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencanopy/living-forest/pkg/geo"
)

func TestEmbedURL_WithoutKeyFallsBackToQueryURL(t *testing.T) {
	raw := geo.EmbedURL("", geo.Coordinate{Lat: 12.1, Lng: 80.1}, 12, nil)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "maps.google.com", u.Host)
	assert.Equal(t, "embed", u.Query().Get("output"))
	assert.Equal(t, "12", u.Query().Get("z"))
	assert.Contains(t, u.Query().Get("q"), "12.1")
}

func TestEmbedURL_WithKeyUsesEmbedAPI(t *testing.T) {
	raw := geo.EmbedURL("test-key", geo.Coordinate{Lat: 12.1, Lng: 80.1}, 12, nil)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.google.com", u.Host)
	assert.Equal(t, "/maps/embed/v1/view", u.Path)
	assert.Equal(t, "test-key", u.Query().Get("key"))
	assert.Equal(t, "12", u.Query().Get("zoom"))
}

func TestEmbedURL_WithMarkersUsesPlaceMode(t *testing.T) {
	markers := []geo.Coordinate{{Lat: 12.0, Lng: 80.0}}
	raw := geo.EmbedURL("test-key", geo.Coordinate{Lat: 12.1, Lng: 80.1}, 12, markers)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/maps/embed/v1/place", u.Path)
	assert.Contains(t, u.Query().Get("q"), "12.0")
}

func TestDefaultViewURL(t *testing.T) {
	u, err := url.Parse(geo.DefaultViewURL())
	require.NoError(t, err)
	assert.Equal(t, "maps.google.com", u.Host)
	assert.NotEmpty(t, u.Query().Get("q"))
}
