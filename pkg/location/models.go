package location

// Coordinate represents a resolved geographic position
type Coordinate struct {
	Lat float64
	Lng float64
}
