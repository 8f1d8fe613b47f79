package geo

import "math"

// TileSize is the side of one web-map tile in pixels.
const TileSize = 256

// Coordinate is a geographic position in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Point is a pixel position relative to the top-left corner of a viewport.
type Point struct {
	X float64
	Y float64
}

// Viewport describes the visible map rectangle markers are placed over:
// the declared center coordinate, the tile zoom level, and the pixel
// dimensions of the rectangle.
type Viewport struct {
	Center Coordinate
	Zoom   int
	Width  float64
	Height float64
}

// worldPoint converts a coordinate to absolute world-plane pixels at the
// given zoom, using the standard web mercator tile projection.
func worldPoint(c Coordinate, zoom int) Point {
	scale := math.Exp2(float64(zoom))
	latRad := c.Lat * math.Pi / 180

	x := (c.Lng + 180) / 360 * scale * TileSize
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * scale * TileSize
	return Point{X: x, Y: y}
}

// Project places a coordinate inside the viewport, returning the pixel
// offset from the viewport's top-left corner. The viewport's own center
// projects to exactly (Width/2, Height/2). Zero viewport dimensions fall
// back to the supplied defaults so a degenerate viewport never collapses
// every marker onto one point.
func Project(c Coordinate, v Viewport, fallbackWidth, fallbackHeight float64) Point {
	width := v.Width
	if width == 0 {
		width = fallbackWidth
	}
	height := v.Height
	if height == 0 {
		height = fallbackHeight
	}

	marker := worldPoint(c, v.Zoom)
	center := worldPoint(v.Center, v.Zoom)

	return Point{
		X: marker.X - center.X + width/2,
		Y: marker.Y - center.Y + height/2,
	}
}
