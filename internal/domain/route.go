package domain

import "time"

type RouteStatus string

const (
	RoutePlanned    RouteStatus = "planned"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
	RouteCancelled  RouteStatus = "cancelled"
)

// Route is a single day's round trip from the depot through an ordered set of
// customer stops and back. Stops are ordered by Stop.Order, contiguous from 1.
type Route struct {
	ID                     string
	Name                   string
	DayOfWeek              string
	Date                   string // YYYY-MM-DD
	Status                 RouteStatus
	DriverID               string
	DriverName             string
	TotalDistanceMiles     float64
	TotalDurationMinutes   int
	EstimatedFuelCost      float64
	Waypoints              []Coordinate
	WaypointOrder          []int
	Stops                  []*Stop
	StartTime              *time.Time
	EndTime                *time.Time
	AverageDurationMinutes *float64
}

// RouteMetrics is the derived portion of a route that changes whenever its
// stop set is re-optimized.
type RouteMetrics struct {
	TotalDistanceMiles   float64
	TotalDurationMinutes int
	EstimatedFuelCost    float64
	Waypoints            []Coordinate
	WaypointOrder        []int
}

// Closed reports whether the route no longer accepts composition changes.
func (r *Route) Closed() bool {
	return r.Status == RouteCompleted || r.Status == RouteCancelled
}

// ValidateRouteTransition enforces the route state machine:
// planned -> in_progress -> completed, planned|in_progress -> cancelled.
// Completion from planned is permitted so a route whose stops were all
// resolved before the driver pressed start can still finalize.
// There is no transition out of completed or cancelled.
func ValidateRouteTransition(from, to RouteStatus) error {
	ok := false
	switch to {
	case RouteInProgress:
		ok = from == RoutePlanned
	case RouteCompleted:
		ok = from == RouteInProgress || from == RoutePlanned
	case RouteCancelled:
		ok = from == RoutePlanned || from == RouteInProgress
	}
	if !ok {
		return &TransitionError{Entity: "route", From: string(from), To: string(to)}
	}
	return nil
}

// RouteTimeRecord is an append-only historical fact recording one completed
// run of a route. Averages are computed over all records for a route identity.
type RouteTimeRecord struct {
	RouteID         string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMinutes int
}
