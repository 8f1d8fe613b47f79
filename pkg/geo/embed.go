package geo

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	embedBaseURL = "https://www.google.com/maps/embed/v1"
	queryBaseURL = "https://maps.google.com/maps"
)

// QueryURL builds the keyless fallback map URL: a plain coordinate query
// against the public maps endpoint, embeddable without a credential.
func QueryURL(center Coordinate, zoom int) string {
	v := url.Values{}
	v.Set("q", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
	v.Set("z", strconv.Itoa(zoom))
	v.Set("output", "embed")
	return queryBaseURL + "?" + v.Encode()
}

// DefaultViewURL is the hardcoded view shown when neither a credential nor
// a coordinate is available.
func DefaultViewURL() string {
	return QueryURL(DefaultCenter, 12)
}

// EmbedURL builds the display URL for the third-party embeddable map from
// a center, zoom and optional marker list. With an API key it targets the
// embed API (place mode when a marker exists, view mode otherwise);
// without one it degrades to the plain coordinate-query URL.
func EmbedURL(apiKey string, center Coordinate, zoom int, markers []Coordinate) string {
	if apiKey == "" {
		return QueryURL(center, zoom)
	}

	v := url.Values{}
	v.Set("key", apiKey)
	v.Set("zoom", strconv.Itoa(zoom))

	if len(markers) > 0 {
		// The embed API renders a single pin via place mode; the first
		// marker wins and the remaining ones are overlaid client-side.
		v.Set("q", fmt.Sprintf("%f,%f", markers[0].Lat, markers[0].Lng))
		v.Set("center", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
		return embedBaseURL + "/place?" + v.Encode()
	}

	v.Set("center", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
	return embedBaseURL + "/view?" + v.Encode()
}
