package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

const (
	// Directions providers cap waypoint-optimization requests.
	maxProviderWaypoints = 23
	minProviderWaypoints = 2

	// Fallback drive-time estimate: 3 minutes per mile (20 mph average).
	// Preserved from the business's original planning rule, not derived from
	// traffic data.
	fallbackMinutesPerMile = 3
)

// OptimizationResult is an ordering over the caller's input points plus the
// derived route metrics. Order indexes into the input slice so callers can
// map positions back to stop and customer identities.
type OptimizationResult struct {
	Order                []int
	TotalDistanceMiles   float64
	TotalDurationMinutes int
	EstimatedFuelCost    float64
	Warning              string
}

// Optimizer produces stop orderings and route metrics. It asks the external
// directions provider first and falls back to the nearest-neighbor heuristic
// whenever the provider cannot serve the request, so optimization degradation
// never blocks route creation.
type Optimizer struct {
	provider    ports.DirectionsProvider
	cache       ports.RouteCache
	costPerMile float64
}

func NewOptimizer(provider ports.DirectionsProvider, cache ports.RouteCache, costPerMile float64) *Optimizer {
	return &Optimizer{
		provider:    provider,
		cache:       cache,
		costPerMile: costPerMile,
	}
}

// Optimize orders points into a round trip from the depot and computes total
// distance, duration, and fuel cost. It never fails: every provider error is
// logged and recovered with the heuristic path.
func (o *Optimizer) Optimize(ctx context.Context, depot domain.Coordinate, points []*domain.Coordinate) OptimizationResult {
	n := len(points)

	coords := make([]domain.Coordinate, 0, n)
	for _, p := range points {
		if p == nil {
			break
		}
		coords = append(coords, *p)
	}
	allCoords := len(coords) == n

	if o.provider == nil || !allCoords || n < minProviderWaypoints {
		return o.estimated(depot, points, "")
	}

	if n > maxProviderWaypoints {
		return o.chunked(ctx, depot, points, coords)
	}

	key := planCacheKey(depot, coords)
	if o.cache != nil {
		plan, ok, err := o.cache.Get(ctx, key)
		if err != nil {
			log.Printf("route cache read failed: %v", err)
		} else if ok {
			return o.fromPlan(plan.Order, plan.DistanceMiles, plan.DurationMinutes, "")
		}
	}

	plan, err := o.provider.OptimizeWaypoints(ctx, depot, coords)
	if err != nil {
		log.Printf("directions optimize failed, using nearest neighbor: points=%d err=%v", n, err)
		return o.estimated(depot, points, "")
	}

	if o.cache != nil {
		cached := ports.CachedPlan{
			Order:           plan.Order,
			DistanceMiles:   plan.DistanceMiles,
			DurationMinutes: plan.DurationMinutes,
		}
		if err := o.cache.Put(ctx, key, cached); err != nil {
			log.Printf("route cache write failed: %v", err)
		}
	}

	return o.fromPlan(plan.Order, plan.DistanceMiles, plan.DurationMinutes, "")
}

// chunked handles routes over the provider waypoint ceiling: the order comes
// from the heuristic, but metrics are still fetched from the provider in
// fixed-order chunks of at most maxProviderWaypoints stops.
func (o *Optimizer) chunked(ctx context.Context, depot domain.Coordinate, points []*domain.Coordinate, coords []domain.Coordinate) OptimizationResult {
	order, miles := NearestNeighbor(depot, points)
	warning := fmt.Sprintf(
		"route has %d stops; using chunked metrics to stay within the %d-stop directions limit",
		len(points), maxProviderWaypoints,
	)

	metrics, err := o.chunkedMetrics(ctx, depot, coords, order)
	if err != nil {
		log.Printf("chunked directions metrics failed, using estimates: points=%d err=%v", len(points), err)
		return OptimizationResult{
			Order:                order,
			TotalDistanceMiles:   miles,
			TotalDurationMinutes: int(math.Round(miles * fallbackMinutesPerMile)),
			EstimatedFuelCost:    miles * o.costPerMile,
			Warning:              warning + "; using estimated distance and time",
		}
	}

	return o.fromPlan(order, metrics.DistanceMiles, metrics.DurationMinutes, warning)
}

func (o *Optimizer) chunkedMetrics(ctx context.Context, depot domain.Coordinate, coords []domain.Coordinate, order []int) (ports.LegMetrics, error) {
	ordered := make([]domain.Coordinate, len(order))
	for i, idx := range order {
		ordered[i] = coords[idx]
	}

	var total ports.LegMetrics
	origin := depot

	chunks := chunkCoordinates(ordered, maxProviderWaypoints)
	for i, chunk := range chunks {
		isLast := i == len(chunks)-1

		destination := depot
		waypoints := chunk
		if !isLast {
			destination = chunk[len(chunk)-1]
			waypoints = chunk[:len(chunk)-1]
		}

		m, err := o.provider.RouteMetrics(ctx, origin, destination, waypoints)
		if err != nil {
			return ports.LegMetrics{}, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}

		total.DistanceMiles += m.DistanceMiles
		total.DurationMinutes += m.DurationMinutes
		origin = destination
	}

	return total, nil
}

// estimated is the pure-heuristic path: nearest-neighbor order with drive
// time derived from great-circle distance.
func (o *Optimizer) estimated(depot domain.Coordinate, points []*domain.Coordinate, warning string) OptimizationResult {
	order, miles := NearestNeighbor(depot, points)
	return OptimizationResult{
		Order:                order,
		TotalDistanceMiles:   miles,
		TotalDurationMinutes: int(math.Round(miles * fallbackMinutesPerMile)),
		EstimatedFuelCost:    miles * o.costPerMile,
		Warning:              warning,
	}
}

// Fuel cost is derived here, not in either optimizer, so the provider and
// heuristic paths share one rule.
func (o *Optimizer) fromPlan(order []int, miles, minutes float64, warning string) OptimizationResult {
	return OptimizationResult{
		Order:                order,
		TotalDistanceMiles:   miles,
		TotalDurationMinutes: int(math.Round(minutes)),
		EstimatedFuelCost:    miles * o.costPerMile,
		Warning:              warning,
	}
}

func chunkCoordinates(coords []domain.Coordinate, size int) [][]domain.Coordinate {
	if size <= 0 {
		return [][]domain.Coordinate{coords}
	}

	chunks := make([][]domain.Coordinate, 0, (len(coords)+size-1)/size)
	for i := 0; i < len(coords); i += size {
		end := i + size
		if end > len(coords) {
			end = len(coords)
		}
		chunks = append(chunks, coords[i:end])
	}
	return chunks
}

func planCacheKey(depot domain.Coordinate, coords []domain.Coordinate) string {
	var b strings.Builder
	b.WriteString("routeplan:")
	fmt.Fprintf(&b, "%.6f,%.6f", depot.Lat, depot.Lng)
	for _, c := range coords {
		fmt.Fprintf(&b, "|%.6f,%.6f", c.Lat, c.Lng)
	}
	return b.String()
}
