package directions

import (
	"context"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

// MockDirections is a scripted DirectionsProvider for tests.
type MockDirections struct {
	Plan    ports.WaypointPlan
	Metrics ports.LegMetrics
	Err     error

	OptimizeCalls int
	MetricsCalls  int
}

func (m *MockDirections) OptimizeWaypoints(ctx context.Context, depot domain.Coordinate, points []domain.Coordinate) (ports.WaypointPlan, error) {
	m.OptimizeCalls++
	if m.Err != nil {
		return ports.WaypointPlan{}, m.Err
	}
	return m.Plan, nil
}

func (m *MockDirections) RouteMetrics(ctx context.Context, origin, destination domain.Coordinate, waypoints []domain.Coordinate) (ports.LegMetrics, error) {
	m.MetricsCalls++
	if m.Err != nil {
		return ports.LegMetrics{}, m.Err
	}
	return m.Metrics, nil
}
