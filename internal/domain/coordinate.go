package domain

// Immutable geographic coordinate (latitude, longitude) in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate lies in the WGS84 degree ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Depot is the fixed origin and destination of every route: the business's
// home base. Process-wide configuration, never mutated at runtime.
type Depot struct {
	Coordinate
	Address string
}

// CandidateStop is a customer location considered for routing. The coordinate
// is nil when the customer has not been geocoded; such a candidate cannot be
// placed on a route.
type CandidateStop struct {
	CustomerID string
	Coordinate *Coordinate
	Archived   bool
}
