package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/platform/obs"
	"lawn-route-service/internal/ports"
)

const (
	metersPerMile = 1609.34

	// Directions API waypoint ceiling per request.
	maxWaypoints = 23
)

// GoogleDirections implements DirectionsProvider against the Google
// Directions API. Every failure is reported as a *ports.ProviderError so
// callers can fall back to the heuristic optimizer; nothing here is fatal.
//
// The HTTP client carries a hard timeout: a hung provider becomes an
// http_failure instead of a hung optimize call.
type GoogleDirections struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewGoogleDirections(apiKey string) *GoogleDirections {
	return &GoogleDirections{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: "https://maps.googleapis.com/maps/api",
	}
}

type directionsLeg struct {
	Distance struct {
		Value float64 `json:"value"` // meters
	} `json:"distance"`
	Duration struct {
		Value float64 `json:"value"` // seconds
	} `json:"duration"`
}

type directionsRoute struct {
	Legs          []directionsLeg `json:"legs"`
	WaypointOrder []int           `json:"waypoint_order"`
}

type directionsResponse struct {
	Status string            `json:"status"`
	Routes []directionsRoute `json:"routes"`
}

// OptimizeWaypoints asks the Directions API to reorder points into an
// efficient round trip from the depot (origin == destination == depot,
// waypoints flagged optimize:true).
func (g *GoogleDirections) OptimizeWaypoints(ctx context.Context, depot domain.Coordinate, points []domain.Coordinate) (_ ports.WaypointPlan, err error) {
	defer obs.Time(ctx, "directions.OptimizeWaypoints")(&err)

	if g.apiKey == "" {
		return ports.WaypointPlan{}, &ports.ProviderError{Kind: ports.ProviderNotConfigured, Detail: "directions API key is not set"}
	}
	if len(points) > maxWaypoints {
		return ports.WaypointPlan{}, &ports.ProviderError{
			Kind:   ports.ProviderTooManyPoints,
			Detail: fmt.Sprintf("%d waypoints exceeds the limit of %d", len(points), maxWaypoints),
		}
	}

	origin := latLngParam(depot)
	route, err := g.fetchRoute(ctx, origin, origin, "optimize:true|"+joinWaypoints(points))
	if err != nil {
		return ports.WaypointPlan{}, err
	}

	if route.WaypointOrder == nil || len(route.WaypointOrder) != len(points) {
		return ports.WaypointPlan{}, &ports.ProviderError{
			Kind:   ports.ProviderMalformedResponse,
			Detail: fmt.Sprintf("waypoint_order has %d entries for %d waypoints", len(route.WaypointOrder), len(points)),
		}
	}
	if !isPermutation(route.WaypointOrder) {
		return ports.WaypointPlan{}, &ports.ProviderError{
			Kind:   ports.ProviderMalformedResponse,
			Detail: "waypoint_order is not a permutation of input indices",
		}
	}

	meters, seconds := sumLegs(route.Legs)
	return ports.WaypointPlan{
		Order:           route.WaypointOrder,
		DistanceMiles:   meters / metersPerMile,
		DurationMinutes: seconds / 60,
	}, nil
}

// RouteMetrics returns summed driving metrics for a fixed-order trip.
func (g *GoogleDirections) RouteMetrics(ctx context.Context, origin, destination domain.Coordinate, waypoints []domain.Coordinate) (_ ports.LegMetrics, err error) {
	defer obs.Time(ctx, "directions.RouteMetrics")(&err)

	if g.apiKey == "" {
		return ports.LegMetrics{}, &ports.ProviderError{Kind: ports.ProviderNotConfigured, Detail: "directions API key is not set"}
	}
	if len(waypoints) > maxWaypoints {
		return ports.LegMetrics{}, &ports.ProviderError{
			Kind:   ports.ProviderTooManyPoints,
			Detail: fmt.Sprintf("%d waypoints exceeds the limit of %d", len(waypoints), maxWaypoints),
		}
	}

	route, err := g.fetchRoute(ctx, latLngParam(origin), latLngParam(destination), joinWaypoints(waypoints))
	if err != nil {
		return ports.LegMetrics{}, err
	}

	meters, seconds := sumLegs(route.Legs)
	return ports.LegMetrics{
		DistanceMiles:   meters / metersPerMile,
		DurationMinutes: seconds / 60,
	}, nil
}

func (g *GoogleDirections) fetchRoute(ctx context.Context, origin, destination, waypoints string) (directionsRoute, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	if waypoints != "" {
		q.Set("waypoints", waypoints)
	}
	q.Set("mode", "driving")
	q.Set("key", g.apiKey)

	endpoint := g.baseURL + "/directions/json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderHTTPFailure, Detail: err.Error()}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderHTTPFailure, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return directionsRoute{}, &ports.ProviderError{
			Kind:   ports.ProviderHTTPFailure,
			Status: resp.StatusCode,
			Detail: resp.Status,
		}
	}

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderMalformedResponse, Detail: "invalid JSON: " + err.Error()}
	}

	if decoded.Status != "OK" {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderUpstreamStatus, Detail: decoded.Status}
	}
	if len(decoded.Routes) == 0 {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderMalformedResponse, Detail: "response contains no routes"}
	}
	if len(decoded.Routes[0].Legs) == 0 {
		return directionsRoute{}, &ports.ProviderError{Kind: ports.ProviderMalformedResponse, Detail: "route contains no legs"}
	}

	return decoded.Routes[0], nil
}

func latLngParam(c domain.Coordinate) string {
	return fmt.Sprintf("%v,%v", c.Lat, c.Lng)
}

// joinWaypoints renders the pipe-delimited "lat,lng|lat,lng|..." parameter.
func joinWaypoints(points []domain.Coordinate) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = latLngParam(p)
	}
	return strings.Join(parts, "|")
}

func sumLegs(legs []directionsLeg) (meters, seconds float64) {
	for _, leg := range legs {
		meters += leg.Distance.Value
		seconds += leg.Duration.Value
	}
	return meters, seconds
}

func isPermutation(order []int) bool {
	seen := make([]bool, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(order) || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}
