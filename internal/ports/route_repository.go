package ports

import (
	"context"

	"lawn-route-service/internal/domain"
)

// StopOrder pairs a stop with its 1-based position in a route.
type StopOrder struct {
	StopID string
	Order  int
}

// Port: persistence boundary for routes, stops, and historical run times.
type RouteRepository interface {
	// CustomerCoordinates resolves routing candidates for the given customer
	// ids, in the same order. Unknown ids are omitted from the result.
	CustomerCoordinates(ctx context.Context, ids []string) ([]domain.CandidateStop, error)

	SaveRoute(ctx context.Context, route *domain.Route) error
	// DeleteRoute is the compensating action when stop persistence fails
	// after a route insert succeeded.
	DeleteRoute(ctx context.Context, routeID string) error
	SaveStops(ctx context.Context, stops []*domain.Stop) error
	DeleteStop(ctx context.Context, stopID string) error

	// RouteByID returns the route with its stops ordered by stop_order.
	RouteByID(ctx context.Context, routeID string) (*domain.Route, error)
	StopByID(ctx context.Context, stopID string) (*domain.Stop, error)

	UpdateRoute(ctx context.Context, route *domain.Route) error
	UpdateStop(ctx context.Context, stop *domain.Stop) error
	UpdateStopOrders(ctx context.Context, routeID string, orders []StopOrder) error
	UpdateRouteMetrics(ctx context.Context, routeID string, m domain.RouteMetrics) error

	AppendRouteTimeRecord(ctx context.Context, rec domain.RouteTimeRecord) error
	RouteTimeRecords(ctx context.Context, routeID string) ([]domain.RouteTimeRecord, error)
}

// Port: crew roster lookups for driver assignment.
type CrewDirectory interface {
	// CrewMemberName returns the display name for a crew member id, or
	// domain.ErrCrewNotFound.
	CrewMemberName(ctx context.Context, crewID string) (string, error)
}

// Port: append-only audit trail. Writes are best effort; callers log and
// continue on failure.
type AuditLog interface {
	Append(ctx context.Context, ev domain.AuditEvent) error
}
