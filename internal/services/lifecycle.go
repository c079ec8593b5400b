package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

// Lifecycle owns the route and stop state machines: creation, stop insertion
// with re-optimization, status transitions, auto-completion, and duration
// history bookkeeping.
//
// Every mutation is serialized per route identity with an in-process lock, so
// two stop updates racing on the same route cannot corrupt stop ordering or
// double-fire completion. Different routes mutate in parallel.
type Lifecycle struct {
	repo      ports.RouteRepository
	crew      ports.CrewDirectory
	audit     ports.AuditLog
	optimizer *Optimizer
	depot     domain.Depot

	stopServiceMinutes int
	now                func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type LifecycleConfig struct {
	Depot domain.Depot
	// Default per-stop service estimate in minutes; 30 when zero.
	StopServiceMinutes int
}

func NewLifecycle(repo ports.RouteRepository, optimizer *Optimizer, crew ports.CrewDirectory, audit ports.AuditLog, cfg LifecycleConfig) *Lifecycle {
	minutes := cfg.StopServiceMinutes
	if minutes <= 0 {
		minutes = 30
	}

	return &Lifecycle{
		repo:               repo,
		crew:               crew,
		audit:              audit,
		optimizer:          optimizer,
		depot:              cfg.Depot,
		stopServiceMinutes: minutes,
		now:                time.Now,
		locks:              make(map[string]*sync.Mutex),
	}
}

// lockRoute acquires the per-route mutex and returns its release func.
func (l *Lifecycle) lockRoute(routeID string) func() {
	l.mu.Lock()
	m, ok := l.locks[routeID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[routeID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

type CreateRouteInput struct {
	Name        string
	DayOfWeek   string
	Date        string
	CustomerIDs []string
	DriverID    string
}

// CreateRoute optimizes the candidate set, persists the route as planned and
// its stops ordered 1..n. Creation is all-or-nothing: if stop persistence
// fails after the route insert, the route insert is compensated with a delete.
func (l *Lifecycle) CreateRoute(ctx context.Context, in CreateRouteInput) (*domain.Route, error) {
	// A customer can hold at most one stop per route; repeated ids collapse
	// to the first occurrence.
	candidates, err := l.repo.CustomerCoordinates(ctx, dedupe(in.CustomerIDs))
	if err != nil {
		return nil, fmt.Errorf("create route: load customers: %w", err)
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleStops
	}

	if missing := missingCoordinateIDs(candidates); len(missing) > 0 {
		if len(missing) == len(candidates) {
			return nil, domain.ErrNoEligibleStops
		}
		return nil, &domain.MissingCoordinatesError{CustomerIDs: missing}
	}

	driverName := ""
	if in.DriverID != "" {
		driverName, err = l.crewName(ctx, in.DriverID)
		if err != nil {
			return nil, fmt.Errorf("create route: %w", err)
		}
	}

	points := candidatePoints(candidates)
	result := l.optimizer.Optimize(ctx, l.depot.Coordinate, points)

	route := &domain.Route{
		ID:                   uuid.NewString(),
		Name:                 strings.TrimSpace(in.Name),
		DayOfWeek:            in.DayOfWeek,
		Date:                 in.Date,
		Status:               domain.RoutePlanned,
		DriverID:             in.DriverID,
		DriverName:           driverName,
		TotalDistanceMiles:   result.TotalDistanceMiles,
		TotalDurationMinutes: result.TotalDurationMinutes,
		EstimatedFuelCost:    result.EstimatedFuelCost,
		Waypoints:            orderedWaypoints(points, result.Order),
		WaypointOrder:        result.Order,
	}

	if err := l.repo.SaveRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("create route: save route: %w", err)
	}

	stops := make([]*domain.Stop, 0, len(result.Order))
	for pos, idx := range result.Order {
		stops = append(stops, &domain.Stop{
			ID:                       uuid.NewString(),
			RouteID:                  route.ID,
			CustomerID:               candidates[idx].CustomerID,
			Order:                    pos + 1,
			Status:                   domain.StopPending,
			EstimatedDurationMinutes: l.stopServiceMinutes,
		})
	}

	if err := l.repo.SaveStops(ctx, stops); err != nil {
		// Creation must be all-or-nothing: compensate the route insert.
		if delErr := l.repo.DeleteRoute(ctx, route.ID); delErr != nil {
			log.Printf("rollback of route %s failed: %v", route.ID, delErr)
		}
		return nil, fmt.Errorf("create route: save stops: %w", err)
	}
	route.Stops = stops

	l.logAudit(ctx, "create", "route", route.ID, map[string]any{
		"stops":   len(stops),
		"warning": result.Warning,
	})

	return route, nil
}

// AddStop re-optimizes the union of the route's stops and the new customer,
// updates the route metrics, and rewrites stop_order for every stop. The new
// stop lands wherever the optimizer placed it, not at the end.
func (l *Lifecycle) AddStop(ctx context.Context, routeID, customerID string) (*domain.Route, error) {
	defer l.lockRoute(routeID)()

	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("add stop: %w", err)
	}
	if route.Closed() {
		return nil, domain.ErrRouteClosed
	}

	for _, s := range route.Stops {
		if s.CustomerID == customerID {
			return nil, domain.ErrDuplicateStop
		}
	}

	ids := make([]string, 0, len(route.Stops)+1)
	for _, s := range route.Stops {
		ids = append(ids, s.CustomerID)
	}
	ids = append(ids, customerID)

	candidates, err := l.repo.CustomerCoordinates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("add stop: load customers: %w", err)
	}
	byCustomer := make(map[string]domain.CandidateStop, len(candidates))
	for _, c := range candidates {
		byCustomer[c.CustomerID] = c
	}

	newCandidate, ok := byCustomer[customerID]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	if newCandidate.Archived {
		return nil, domain.ErrCustomerArchived
	}

	// Full re-optimization requires coordinates for every stop, old and new.
	entries := make([]domain.CandidateStop, 0, len(ids))
	for _, id := range ids {
		c, ok := byCustomer[id]
		if !ok {
			c = domain.CandidateStop{CustomerID: id}
		}
		entries = append(entries, c)
	}
	if missing := missingCoordinateIDs(entries); len(missing) > 0 {
		return nil, &domain.MissingCoordinatesError{CustomerIDs: missing}
	}

	points := candidatePoints(entries)
	result := l.optimizer.Optimize(ctx, l.depot.Coordinate, points)

	prevMetrics := routeMetrics(route)
	metrics := domain.RouteMetrics{
		TotalDistanceMiles:   result.TotalDistanceMiles,
		TotalDurationMinutes: result.TotalDurationMinutes,
		EstimatedFuelCost:    result.EstimatedFuelCost,
		Waypoints:            orderedWaypoints(points, result.Order),
		WaypointOrder:        result.Order,
	}
	if err := l.repo.UpdateRouteMetrics(ctx, routeID, metrics); err != nil {
		return nil, fmt.Errorf("add stop: update metrics: %w", err)
	}

	newStop := &domain.Stop{
		ID:                       uuid.NewString(),
		RouteID:                  routeID,
		CustomerID:               customerID,
		Order:                    len(entries),
		Status:                   domain.StopPending,
		EstimatedDurationMinutes: l.stopServiceMinutes,
	}
	if err := l.repo.SaveStops(ctx, []*domain.Stop{newStop}); err != nil {
		l.restoreMetrics(ctx, routeID, prevMetrics)
		return nil, fmt.Errorf("add stop: save stop: %w", err)
	}

	// The optimizer order indexes entries; entries[i] maps to route.Stops[i]
	// for i < len(route.Stops) and to the new stop for the final index.
	orders := make([]ports.StopOrder, 0, len(result.Order))
	for pos, idx := range result.Order {
		stopID := newStop.ID
		if idx < len(route.Stops) {
			stopID = route.Stops[idx].ID
		}
		orders = append(orders, ports.StopOrder{StopID: stopID, Order: pos + 1})
	}

	if err := l.repo.UpdateStopOrders(ctx, routeID, orders); err != nil {
		if delErr := l.repo.DeleteStop(ctx, newStop.ID); delErr != nil {
			log.Printf("rollback of stop %s failed: %v", newStop.ID, delErr)
		}
		l.restoreMetrics(ctx, routeID, prevMetrics)
		return nil, fmt.Errorf("add stop: reorder stops: %w", err)
	}

	l.logAudit(ctx, "add_stop", "route", routeID, map[string]any{
		"customer_id": customerID,
		"stop_id":     newStop.ID,
		"warning":     result.Warning,
	})

	updated, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("add stop: reload route: %w", err)
	}
	return updated, nil
}

type MarkStopInput struct {
	StopID       string
	Status       domain.StopStatus
	SkipReason   string
	ServiceNotes string
	ArrivalTime  *time.Time
}

// MarkStopStatus applies one stop transition. When the route is left with no
// pending or in-progress stops, the parent route is completed automatically,
// exactly once.
func (l *Lifecycle) MarkStopStatus(ctx context.Context, in MarkStopInput) (*domain.Stop, error) {
	stop, err := l.repo.StopByID(ctx, in.StopID)
	if err != nil {
		return nil, fmt.Errorf("mark stop: %w", err)
	}

	defer l.lockRoute(stop.RouteID)()

	// Re-read under the lock so a racing writer's update is visible.
	stop, err = l.repo.StopByID(ctx, in.StopID)
	if err != nil {
		return nil, fmt.Errorf("mark stop: %w", err)
	}

	route, err := l.repo.RouteByID(ctx, stop.RouteID)
	if err != nil {
		return nil, fmt.Errorf("mark stop: %w", err)
	}
	if route.Status == domain.RouteCompleted {
		return nil, domain.ErrRouteClosed
	}

	if in.Status == domain.StopSkipped && strings.TrimSpace(in.SkipReason) == "" {
		return nil, domain.ErrSkipReasonRequired
	}
	if err := domain.ValidateStopTransition(stop.Status, in.Status); err != nil {
		return nil, err
	}

	now := l.now()
	stop.Status = in.Status
	if in.ServiceNotes != "" {
		stop.ServiceNotes = in.ServiceNotes
	}

	switch in.Status {
	case domain.StopInProgress:
		at := now
		if in.ArrivalTime != nil {
			at = *in.ArrivalTime
		}
		stop.ActualArrivalTime = &at
	case domain.StopCompleted:
		completed := now
		stop.CompletedAt = &completed
		stop.ActualDepartureTime = &completed
		if stop.ActualArrivalTime != nil {
			minutes := int(math.Round(completed.Sub(*stop.ActualArrivalTime).Minutes()))
			if minutes < 0 {
				minutes = 0
			}
			stop.ActualDurationMinutes = &minutes
		}
		stop.SkipReason = ""
	case domain.StopSkipped:
		stop.SkipReason = strings.TrimSpace(in.SkipReason)
	case domain.StopPending:
		// Undo: clear completion and skip metadata.
		stop.CompletedAt = nil
		stop.ActualArrivalTime = nil
		stop.ActualDepartureTime = nil
		stop.ActualDurationMinutes = nil
		stop.SkipReason = ""
	}

	if err := l.repo.UpdateStop(ctx, stop); err != nil {
		return nil, fmt.Errorf("mark stop: update: %w", err)
	}

	l.logAudit(ctx, "update_stop", "route_stop", stop.ID, map[string]any{
		"status": string(stop.Status),
	})

	if stop.Resolved() {
		route, err = l.repo.RouteByID(ctx, stop.RouteID)
		if err != nil {
			return nil, fmt.Errorf("mark stop: reload route: %w", err)
		}
		if allStopsResolved(route.Stops) && route.Status != domain.RouteCancelled {
			if _, _, err := l.completeLocked(ctx, route); err != nil {
				return nil, fmt.Errorf("mark stop: auto-complete route: %w", err)
			}
		}
	}

	return stop, nil
}

// Route loads one route with its stops in execution order.
func (l *Lifecycle) Route(ctx context.Context, routeID string) (*domain.Route, error) {
	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}
	return route, nil
}

// StartRoute moves a planned route into execution and records the start time.
func (l *Lifecycle) StartRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	defer l.lockRoute(routeID)()

	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("start route: %w", err)
	}
	if err := domain.ValidateRouteTransition(route.Status, domain.RouteInProgress); err != nil {
		return nil, err
	}

	now := l.now()
	route.Status = domain.RouteInProgress
	route.StartTime = &now
	if err := l.repo.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("start route: update: %w", err)
	}

	l.logAudit(ctx, "status_change", "route", routeID, map[string]any{
		"status": string(domain.RouteInProgress),
	})
	return route, nil
}

// CompleteRoute finalizes a route: end time, clamped duration, one appended
// RouteTimeRecord, and a recomputed historical average. Calling it on an
// already-completed route is a no-op that reports alreadyCompleted.
func (l *Lifecycle) CompleteRoute(ctx context.Context, routeID string) (*domain.Route, bool, error) {
	defer l.lockRoute(routeID)()

	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, false, fmt.Errorf("complete route: %w", err)
	}
	return l.completeLocked(ctx, route)
}

// completeLocked does the completion work; the caller must hold the route lock.
func (l *Lifecycle) completeLocked(ctx context.Context, route *domain.Route) (*domain.Route, bool, error) {
	if route.Status == domain.RouteCompleted {
		return route, true, nil
	}
	if err := domain.ValidateRouteTransition(route.Status, domain.RouteCompleted); err != nil {
		return nil, false, err
	}

	end := l.now()
	start := end
	if route.StartTime != nil {
		start = *route.StartTime
	}
	duration := int(math.Round(end.Sub(start).Minutes()))
	if duration < 0 {
		duration = 0
	}

	route.Status = domain.RouteCompleted
	route.StartTime = &start
	route.EndTime = &end
	if err := l.repo.UpdateRoute(ctx, route); err != nil {
		return nil, false, fmt.Errorf("complete route: update: %w", err)
	}

	// Duration history is best effort: the completed status is already
	// persisted, so a failed history write is logged, never surfaced.
	rec := domain.RouteTimeRecord{
		RouteID:         route.ID,
		StartedAt:       start,
		EndedAt:         end,
		DurationMinutes: duration,
	}
	if err := l.repo.AppendRouteTimeRecord(ctx, rec); err != nil {
		log.Printf("route %s: duration history append failed: %v", route.ID, err)
	}

	records, err := l.repo.RouteTimeRecords(ctx, route.ID)
	if err != nil {
		log.Printf("route %s: load duration history failed: %v", route.ID, err)
	} else if len(records) > 0 {
		sum := 0
		for _, r := range records {
			sum += r.DurationMinutes
		}
		avg := float64(sum) / float64(len(records))
		route.AverageDurationMinutes = &avg
		if err := l.repo.UpdateRoute(ctx, route); err != nil {
			log.Printf("route %s: average update failed: %v", route.ID, err)
		}
	}

	l.logAudit(ctx, "status_change", "route", route.ID, map[string]any{
		"status":           string(domain.RouteCompleted),
		"duration_minutes": duration,
	})
	return route, false, nil
}

// CancelRoute abandons a planned or in-progress route.
func (l *Lifecycle) CancelRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	defer l.lockRoute(routeID)()

	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("cancel route: %w", err)
	}
	if err := domain.ValidateRouteTransition(route.Status, domain.RouteCancelled); err != nil {
		return nil, err
	}

	route.Status = domain.RouteCancelled
	if err := l.repo.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("cancel route: update: %w", err)
	}

	l.logAudit(ctx, "status_change", "route", routeID, map[string]any{
		"status": string(domain.RouteCancelled),
	})
	return route, nil
}

// AssignDriver sets or clears the route's driver. An empty driverID unassigns.
func (l *Lifecycle) AssignDriver(ctx context.Context, routeID, driverID string) (*domain.Route, error) {
	defer l.lockRoute(routeID)()

	route, err := l.repo.RouteByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("assign driver: %w", err)
	}

	name := ""
	if driverID != "" {
		name, err = l.crewName(ctx, driverID)
		if err != nil {
			return nil, fmt.Errorf("assign driver: %w", err)
		}
	}

	route.DriverID = driverID
	route.DriverName = name
	if err := l.repo.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("assign driver: update: %w", err)
	}

	l.logAudit(ctx, "assign_driver", "route", routeID, map[string]any{
		"driver_id": driverID,
	})
	return route, nil
}

func (l *Lifecycle) crewName(ctx context.Context, crewID string) (string, error) {
	if l.crew == nil {
		return "", domain.ErrCrewNotFound
	}
	return l.crew.CrewMemberName(ctx, crewID)
}

func (l *Lifecycle) restoreMetrics(ctx context.Context, routeID string, m domain.RouteMetrics) {
	if err := l.repo.UpdateRouteMetrics(ctx, routeID, m); err != nil {
		log.Printf("rollback of route %s metrics failed: %v", routeID, err)
	}
}

func (l *Lifecycle) logAudit(ctx context.Context, action, entityType, entityID string, detail map[string]any) {
	if l.audit == nil {
		return
	}
	ev := domain.AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		At:         l.now(),
	}
	if err := l.audit.Append(ctx, ev); err != nil {
		log.Printf("audit append failed: action=%s entity=%s/%s err=%v", action, entityType, entityID, err)
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func allStopsResolved(stops []*domain.Stop) bool {
	for _, s := range stops {
		if !s.Resolved() {
			return false
		}
	}
	return len(stops) > 0
}

func missingCoordinateIDs(candidates []domain.CandidateStop) []string {
	missing := make([]string, 0)
	for _, c := range candidates {
		if c.Coordinate == nil {
			missing = append(missing, c.CustomerID)
		}
	}
	return missing
}

func candidatePoints(candidates []domain.CandidateStop) []*domain.Coordinate {
	points := make([]*domain.Coordinate, len(candidates))
	for i, c := range candidates {
		points[i] = c.Coordinate
	}
	return points
}

func orderedWaypoints(points []*domain.Coordinate, order []int) []domain.Coordinate {
	out := make([]domain.Coordinate, 0, len(order))
	for _, idx := range order {
		if p := points[idx]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func routeMetrics(r *domain.Route) domain.RouteMetrics {
	return domain.RouteMetrics{
		TotalDistanceMiles:   r.TotalDistanceMiles,
		TotalDurationMinutes: r.TotalDurationMinutes,
		EstimatedFuelCost:    r.EstimatedFuelCost,
		Waypoints:            r.Waypoints,
		WaypointOrder:        r.WaypointOrder,
	}
}
