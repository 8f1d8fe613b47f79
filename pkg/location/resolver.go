package location

import (
	"context"

	"github.com/rs/zerolog"
)

// Resolver turns a submission into an optional coordinate. Explicit
// coordinates on the submission win; otherwise the address is geocoded;
// on field devices a GPS fix is the final fallback. Every failure path is
// non-fatal: the caller stores the record without a coordinate and it
// simply renders no marker.
type Resolver struct {
	geocoder Geocoder
	sensor   FixReader
	logger   zerolog.Logger
}

// NewResolver creates a Resolver. Either dependency may be nil, in which
// case that resolution step is skipped.
func NewResolver(geocoder Geocoder, sensor FixReader, logger zerolog.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		sensor:   sensor,
		logger:   logger,
	}
}

// Resolve returns the coordinate for a submission, or nil when none can be
// determined.
func (r *Resolver) Resolve(ctx context.Context, address string, lat, lng *float64) *Coordinate {
	if lat != nil && lng != nil {
		return &Coordinate{Lat: *lat, Lng: *lng}
	}

	if r.geocoder != nil && address != "" {
		c, err := r.geocoder.Geocode(ctx, address)
		if err == nil {
			return &c
		}
		r.logger.Warn().
			Err(err).
			Str("address", address).
			Msg("Geocoding failed, continuing without coordinates")
	}

	if r.sensor != nil {
		c, err := r.sensor.ReadFix()
		if err == nil {
			return &c
		}
		r.logger.Warn().Err(err).Msg("GPS fix unavailable, continuing without coordinates")
	}

	return nil
}
