package services

import (
	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/geo"
)

// NearestNeighbor orders points into a round trip from the depot using a
// greedy nearest-neighbor heuristic.
//
// From the depot it repeatedly visits the closest unvisited point, breaking
// ties by lowest index, then closes the loop back to the depot. The returned
// order is a permutation of input indices; the distance is the full
// round-trip in miles.
//
// Points with a nil coordinate never win the distance comparison, so they
// fall to the end of the order in input sequence and contribute no distance.
// O(n^2), which is fine at lawn-route sizes (tens of stops).
// Deterministic: identical input always yields the identical order.
func NearestNeighbor(depot domain.Coordinate, points []*domain.Coordinate) ([]int, float64) {
	if len(points) == 0 {
		return []int{}, 0
	}

	unvisited := make([]int, len(points))
	for i := range points {
		unvisited[i] = i
	}

	order := make([]int, 0, len(points))
	current := depot

	for len(unvisited) > 0 {
		nearestPos := 0
		nearestMiles := -1.0

		// Greedy step: strictly closer wins, so the first-encountered index
		// is kept on ties.
		for pos, idx := range unvisited {
			p := points[idx]
			if p == nil {
				continue
			}
			d := geo.DistanceMiles(current.Lat, current.Lng, p.Lat, p.Lng)
			if nearestMiles < 0 || d < nearestMiles {
				nearestMiles = d
				nearestPos = pos
			}
		}

		next := unvisited[nearestPos]
		unvisited = append(unvisited[:nearestPos], unvisited[nearestPos+1:]...)
		order = append(order, next)
		if p := points[next]; p != nil {
			current = *p
		}
	}

	return order, roundTripMiles(depot, points, order)
}

// roundTripMiles sums leg distances depot -> ordered points -> depot,
// skipping points without coordinates.
func roundTripMiles(depot domain.Coordinate, points []*domain.Coordinate, order []int) float64 {
	total := 0.0
	prev := depot
	visited := false

	for _, idx := range order {
		p := points[idx]
		if p == nil {
			continue
		}
		total += geo.DistanceMiles(prev.Lat, prev.Lng, p.Lat, p.Lng)
		prev = *p
		visited = true
	}

	if visited {
		total += geo.DistanceMiles(prev.Lat, prev.Lng, depot.Lat, depot.Lng)
	}

	return total
}
