package services

import (
	"context"
	"math"
	"testing"

	"lawn-route-service/internal/adapters/directions"
	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

// memoryPlanCache is an in-memory ports.RouteCache for tests.
type memoryPlanCache struct {
	plans map[string]ports.CachedPlan
	gets  int
	puts  int
}

func newMemoryPlanCache() *memoryPlanCache {
	return &memoryPlanCache{plans: make(map[string]ports.CachedPlan)}
}

func (c *memoryPlanCache) Get(ctx context.Context, key string) (ports.CachedPlan, bool, error) {
	c.gets++
	plan, ok := c.plans[key]
	return plan, ok, nil
}

func (c *memoryPlanCache) Put(ctx context.Context, key string, plan ports.CachedPlan) error {
	c.puts++
	c.plans[key] = plan
	return nil
}

func TestOptimizeUsesProviderPlan(t *testing.T) {
	provider := &directions.MockDirections{
		Plan: ports.WaypointPlan{
			Order:           []int{1, 0},
			DistanceMiles:   12.5,
			DurationMinutes: 40,
		},
	}
	o := NewOptimizer(provider, nil, 0.15)

	depot := domain.Coordinate{Lat: 38.78, Lng: -90.50}
	points := []*domain.Coordinate{coord(38.79, -90.56), coord(38.75, -90.55)}

	result := o.Optimize(context.Background(), depot, points)

	if provider.OptimizeCalls != 1 {
		t.Fatalf("OptimizeCalls = %d, want 1", provider.OptimizeCalls)
	}
	if result.Order[0] != 1 || result.Order[1] != 0 {
		t.Fatalf("order = %v, want [1 0]", result.Order)
	}
	if result.TotalDistanceMiles != 12.5 {
		t.Fatalf("distance = %f, want 12.5", result.TotalDistanceMiles)
	}
	if result.TotalDurationMinutes != 40 {
		t.Fatalf("duration = %d, want 40", result.TotalDurationMinutes)
	}
	if math.Abs(result.EstimatedFuelCost-12.5*0.15) > 1e-9 {
		t.Fatalf("fuel cost = %f, want %f", result.EstimatedFuelCost, 12.5*0.15)
	}
}

func TestOptimizeFallsBackOnProviderError(t *testing.T) {
	provider := &directions.MockDirections{
		Err: &ports.ProviderError{Kind: ports.ProviderHTTPFailure, Status: 503},
	}
	o := NewOptimizer(provider, nil, 0.15)

	depot := domain.Coordinate{Lat: 0, Lng: 0}
	points := []*domain.Coordinate{coord(0, 2), coord(0, 1)}

	result := o.Optimize(context.Background(), depot, points)

	// Heuristic fallback: same answer the estimator gives directly.
	wantOrder, wantMiles := NearestNeighbor(depot, points)
	for i := range wantOrder {
		if result.Order[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", result.Order, wantOrder)
		}
	}
	if math.Abs(result.TotalDistanceMiles-wantMiles) > 1e-9 {
		t.Fatalf("distance = %f, want %f", result.TotalDistanceMiles, wantMiles)
	}
	wantMinutes := int(math.Round(wantMiles * 3))
	if result.TotalDurationMinutes != wantMinutes {
		t.Fatalf("duration = %d, want %d", result.TotalDurationMinutes, wantMinutes)
	}
}

func TestOptimizeWithNilProviderEstimates(t *testing.T) {
	o := NewOptimizer(nil, nil, 0.15)

	depot := domain.Coordinate{Lat: 0, Lng: 0}
	points := []*domain.Coordinate{coord(0, 1)}

	result := o.Optimize(context.Background(), depot, points)

	if len(result.Order) != 1 || result.Order[0] != 0 {
		t.Fatalf("order = %v, want [0]", result.Order)
	}
	if result.TotalDistanceMiles <= 0 {
		t.Fatalf("distance = %f, want > 0", result.TotalDistanceMiles)
	}
}

func TestOptimizeSkipsProviderWhenCoordinatesMissing(t *testing.T) {
	provider := &directions.MockDirections{
		Plan: ports.WaypointPlan{Order: []int{0, 1}},
	}
	o := NewOptimizer(provider, nil, 0.15)

	depot := domain.Coordinate{Lat: 0, Lng: 0}
	points := []*domain.Coordinate{coord(0, 1), nil}

	result := o.Optimize(context.Background(), depot, points)

	if provider.OptimizeCalls != 0 {
		t.Fatalf("OptimizeCalls = %d, want 0 when a coordinate is missing", provider.OptimizeCalls)
	}
	if len(result.Order) != 2 {
		t.Fatalf("order = %v, want both indices", result.Order)
	}
}

func TestOptimizeOverCeilingUsesChunkedMetrics(t *testing.T) {
	provider := &directions.MockDirections{
		Metrics: ports.LegMetrics{DistanceMiles: 10, DurationMinutes: 30},
	}
	o := NewOptimizer(provider, nil, 0.15)

	depot := domain.Coordinate{Lat: 38.78, Lng: -90.50}
	points := make([]*domain.Coordinate, 0, 24)
	for i := 0; i < 24; i++ {
		points = append(points, coord(38.70+float64(i)*0.01, -90.50))
	}

	result := o.Optimize(context.Background(), depot, points)

	if provider.OptimizeCalls != 0 {
		t.Fatalf("OptimizeCalls = %d, want 0 over the waypoint ceiling", provider.OptimizeCalls)
	}
	// 24 ordered stops in chunks of 23: two fixed-order metrics requests.
	if provider.MetricsCalls != 2 {
		t.Fatalf("MetricsCalls = %d, want 2", provider.MetricsCalls)
	}
	if result.TotalDistanceMiles != 20 {
		t.Fatalf("distance = %f, want 20 (summed chunks)", result.TotalDistanceMiles)
	}
	if result.TotalDurationMinutes != 60 {
		t.Fatalf("duration = %d, want 60 (summed chunks)", result.TotalDurationMinutes)
	}
	if result.Warning == "" {
		t.Fatal("expected a warning describing chunked metrics")
	}
	if len(result.Order) != 24 {
		t.Fatalf("order length = %d, want 24", len(result.Order))
	}
}

func TestOptimizeReadsAndWritesPlanCache(t *testing.T) {
	provider := &directions.MockDirections{
		Plan: ports.WaypointPlan{
			Order:           []int{1, 0},
			DistanceMiles:   8,
			DurationMinutes: 25,
		},
	}
	planCache := newMemoryPlanCache()
	o := NewOptimizer(provider, planCache, 0.15)

	depot := domain.Coordinate{Lat: 38.78, Lng: -90.50}
	points := []*domain.Coordinate{coord(38.79, -90.56), coord(38.75, -90.55)}

	first := o.Optimize(context.Background(), depot, points)
	if provider.OptimizeCalls != 1 {
		t.Fatalf("OptimizeCalls after miss = %d, want 1", provider.OptimizeCalls)
	}
	if planCache.puts != 1 {
		t.Fatalf("cache puts = %d, want 1", planCache.puts)
	}

	second := o.Optimize(context.Background(), depot, points)
	if provider.OptimizeCalls != 1 {
		t.Fatalf("OptimizeCalls after hit = %d, want still 1", provider.OptimizeCalls)
	}

	if second.TotalDistanceMiles != first.TotalDistanceMiles ||
		second.TotalDurationMinutes != first.TotalDurationMinutes {
		t.Fatalf("cached result %+v differs from original %+v", second, first)
	}
}
