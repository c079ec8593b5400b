package ports

import (
	"context"
	"fmt"

	"lawn-route-service/internal/domain"
)

// WaypointPlan is a provider-optimized visit order plus real driving metrics.
// Order is a permutation of indices into the caller's point slice.
type WaypointPlan struct {
	Order           []int
	DistanceMiles   float64
	DurationMinutes float64
}

// LegMetrics is summed driving distance and duration for a fixed-order trip.
type LegMetrics struct {
	DistanceMiles   float64
	DurationMinutes float64
}

// DirectionsProvider is the contract for an external driving-directions
// service. Every failure is a *ProviderError; callers treat any error as
// "use the heuristic fallback", never as a hard failure.
type DirectionsProvider interface {
	// OptimizeWaypoints asks the provider to reorder points into an efficient
	// round trip from the depot.
	OptimizeWaypoints(ctx context.Context, depot domain.Coordinate, points []domain.Coordinate) (WaypointPlan, error)

	// RouteMetrics returns driving metrics for a trip visiting waypoints in
	// the given order from origin to destination, without reordering.
	RouteMetrics(ctx context.Context, origin, destination domain.Coordinate, waypoints []domain.Coordinate) (LegMetrics, error)
}

type ProviderErrorKind string

const (
	ProviderNotConfigured     ProviderErrorKind = "not_configured"
	ProviderTooManyPoints     ProviderErrorKind = "too_many_points"
	ProviderHTTPFailure       ProviderErrorKind = "http_failure"
	ProviderUpstreamStatus    ProviderErrorKind = "upstream_status"
	ProviderMalformedResponse ProviderErrorKind = "malformed_response"
)

// ProviderError is a typed, non-fatal directions failure. Status carries the
// HTTP status code for http_failure; Detail carries the upstream routing
// status or a description of what was malformed.
type ProviderError struct {
	Kind   ProviderErrorKind
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("directions provider %s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("directions provider %s: %s", e.Kind, e.Detail)
}
