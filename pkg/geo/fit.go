package geo

// DefaultZoom is the closest-in zoom, used when there are not enough
// coordinates to derive a span.
const DefaultZoom = 15

// DefaultCenter is the hardcoded default view used when no record carries
// a coordinate.
var DefaultCenter = Coordinate{Lat: 13.0827, Lng: 80.2707}

// zoomBreakpoints maps the larger of the latitude/longitude spans to a
// zoom level. Ordered widest first; the first entry whose span is exceeded
// wins, so a coarser span always yields a lower zoom.
var zoomBreakpoints = []struct {
	span float64
	zoom int
}{
	{40, 3},
	{20, 4},
	{10, 5},
	{5, 6},
	{2, 8},
	{1, 9},
	{0.5, 10},
	{0.2, 11},
	{0.1, 12},
	{0.05, 13},
	{0.01, 14},
}

// Bounds is the bounding box of a set of coordinates.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundsOf computes the bounding box of coords. It returns false when
// coords is empty.
func BoundsOf(coords []Coordinate) (Bounds, bool) {
	if len(coords) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		MinLat: coords[0].Lat, MaxLat: coords[0].Lat,
		MinLng: coords[0].Lng, MaxLng: coords[0].Lng,
	}
	for _, c := range coords[1:] {
		if c.Lat < b.MinLat {
			b.MinLat = c.Lat
		}
		if c.Lat > b.MaxLat {
			b.MaxLat = c.Lat
		}
		if c.Lng < b.MinLng {
			b.MinLng = c.Lng
		}
		if c.Lng > b.MaxLng {
			b.MaxLng = c.Lng
		}
	}
	return b, true
}

// FitBounds chooses the map view that contains every coordinate: the
// center is the bounding-box midpoint and the zoom steps down as the box
// grows. Zero coordinates yield the default view; a single coordinate is
// centered at the closest-in zoom.
func FitBounds(coords []Coordinate) (Coordinate, int) {
	b, ok := BoundsOf(coords)
	if !ok {
		return DefaultCenter, DefaultZoom
	}
	if len(coords) == 1 {
		return coords[0], DefaultZoom
	}

	center := Coordinate{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}

	span := b.MaxLat - b.MinLat
	if lngSpan := b.MaxLng - b.MinLng; lngSpan > span {
		span = lngSpan
	}

	for _, bp := range zoomBreakpoints {
		if span > bp.span {
			return center, bp.zoom
		}
	}
	return center, DefaultZoom
}
