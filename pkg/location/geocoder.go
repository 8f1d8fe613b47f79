package location

import (
	"context"
	"errors"
	"time"

	"googlemaps.github.io/maps"
)

// ErrNoResults is returned when the geocoding API resolves the address to
// nothing. Callers treat this as "no coordinate", never as a failure of
// the submission itself.
var ErrNoResults = errors.New("address could not be geocoded")

// Geocoder resolves a free-text address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinate, error)
}

// GoogleGeocoder uses the Google Maps Geocoding API to resolve addresses.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a new GoogleGeocoder instance.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		client: c,
	}, nil
}

// Geocode resolves the address using the Geocoding API and returns the
// first result's location.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
	})
	if err != nil {
		return Coordinate{}, err
	}
	if len(results) == 0 {
		return Coordinate{}, ErrNoResults
	}

	loc := results[0].Geometry.Location
	return Coordinate{
		Lat: loc.Lat,
		Lng: loc.Lng,
	}, nil
}
