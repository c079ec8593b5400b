package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

// memoryRepo is an in-memory ports.RouteRepository for lifecycle tests.
// Failure switches let tests force specific persistence steps to fail.
// Safe for concurrent use, like the real repository.
type memoryRepo struct {
	mu        sync.Mutex
	customers map[string]domain.CandidateStop
	routes    map[string]*domain.Route
	stops     map[string]*domain.Stop
	times     map[string][]domain.RouteTimeRecord

	failSaveStops    bool
	failUpdateOrders bool
	failAppendTime   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers: make(map[string]domain.CandidateStop),
		routes:    make(map[string]*domain.Route),
		stops:     make(map[string]*domain.Stop),
		times:     make(map[string][]domain.RouteTimeRecord),
	}
}

func (r *memoryRepo) addCustomer(id string, lat, lng float64) {
	r.customers[id] = domain.CandidateStop{
		CustomerID: id,
		Coordinate: &domain.Coordinate{Lat: lat, Lng: lng},
	}
}

func (r *memoryRepo) addUngeocodedCustomer(id string) {
	r.customers[id] = domain.CandidateStop{CustomerID: id}
}

func (r *memoryRepo) CustomerCoordinates(ctx context.Context, ids []string) ([]domain.CandidateStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.CandidateStop, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.customers[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) SaveRoute(ctx context.Context, route *domain.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *route
	cp.Stops = nil
	r.routes[route.ID] = &cp
	return nil
}

func (r *memoryRepo) DeleteRoute(ctx context.Context, routeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.routes, routeID)
	for id, s := range r.stops {
		if s.RouteID == routeID {
			delete(r.stops, id)
		}
	}
	return nil
}

func (r *memoryRepo) SaveStops(ctx context.Context, stops []*domain.Stop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSaveStops {
		return errors.New("forced stop save failure")
	}
	for _, s := range stops {
		cp := *s
		r.stops[s.ID] = &cp
	}
	return nil
}

func (r *memoryRepo) DeleteStop(ctx context.Context, stopID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stops, stopID)
	return nil
}

func (r *memoryRepo) RouteByID(ctx context.Context, routeID string) (*domain.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[routeID]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}

	cp := *route
	cp.Stops = nil
	for _, s := range r.stops {
		if s.RouteID == routeID {
			sc := *s
			cp.Stops = append(cp.Stops, &sc)
		}
	}
	sort.Slice(cp.Stops, func(i, j int) bool { return cp.Stops[i].Order < cp.Stops[j].Order })
	return &cp, nil
}

func (r *memoryRepo) StopByID(ctx context.Context, stopID string) (*domain.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stops[stopID]
	if !ok {
		return nil, domain.ErrStopNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepo) UpdateRoute(ctx context.Context, route *domain.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[route.ID]; !ok {
		return domain.ErrRouteNotFound
	}
	cp := *route
	cp.Stops = nil
	r.routes[route.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdateStop(ctx context.Context, stop *domain.Stop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stops[stop.ID]; !ok {
		return domain.ErrStopNotFound
	}
	cp := *stop
	r.stops[stop.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdateStopOrders(ctx context.Context, routeID string, orders []ports.StopOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpdateOrders {
		return errors.New("forced reorder failure")
	}
	for _, o := range orders {
		s, ok := r.stops[o.StopID]
		if !ok {
			return domain.ErrStopNotFound
		}
		s.Order = o.Order
	}
	return nil
}

func (r *memoryRepo) UpdateRouteMetrics(ctx context.Context, routeID string, m domain.RouteMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[routeID]
	if !ok {
		return domain.ErrRouteNotFound
	}
	route.TotalDistanceMiles = m.TotalDistanceMiles
	route.TotalDurationMinutes = m.TotalDurationMinutes
	route.EstimatedFuelCost = m.EstimatedFuelCost
	route.Waypoints = m.Waypoints
	route.WaypointOrder = m.WaypointOrder
	return nil
}

func (r *memoryRepo) AppendRouteTimeRecord(ctx context.Context, rec domain.RouteTimeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAppendTime {
		return errors.New("forced history append failure")
	}
	r.times[rec.RouteID] = append(r.times[rec.RouteID], rec)
	return nil
}

func (r *memoryRepo) RouteTimeRecords(ctx context.Context, routeID string) ([]domain.RouteTimeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.times[routeID], nil
}

func (r *memoryRepo) timeRecordCount(routeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.times[routeID])
}

type memoryCrew struct {
	names map[string]string
}

func (c *memoryCrew) CrewMemberName(ctx context.Context, crewID string) (string, error) {
	name, ok := c.names[crewID]
	if !ok {
		return "", domain.ErrCrewNotFound
	}
	return name, nil
}

func newTestLifecycle(repo *memoryRepo) *Lifecycle {
	crew := &memoryCrew{names: map[string]string{"crew-1": "Mike Torres"}}
	l := NewLifecycle(repo, NewOptimizer(nil, nil, 0.15), crew, nil, LifecycleConfig{
		Depot: domain.Depot{Coordinate: domain.Coordinate{Lat: 0, Lng: 0}},
	})
	return l
}

// Three customers on a meridian so the heuristic order is predictable:
// near, middle, far from the depot at the origin.
func seedMeridianCustomers(repo *memoryRepo) {
	repo.addCustomer("near", 0, 0.5)
	repo.addCustomer("middle", 0, 1)
	repo.addCustomer("far", 0, 2)
}

func TestCreateRouteOrdersStops(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek:   "monday",
		Date:        "2026-09-07",
		CustomerIDs: []string{"far", "near", "middle"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if route.Status != domain.RoutePlanned {
		t.Fatalf("status = %s, want planned", route.Status)
	}
	if len(route.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(route.Stops))
	}

	wantCustomers := []string{"near", "middle", "far"}
	for i, s := range route.Stops {
		if s.CustomerID != wantCustomers[i] {
			t.Fatalf("stop %d customer = %s, want %s", i, s.CustomerID, wantCustomers[i])
		}
		if s.Order != i+1 {
			t.Fatalf("stop %d order = %d, want %d", i, s.Order, i+1)
		}
		if s.Status != domain.StopPending {
			t.Fatalf("stop %d status = %s, want pending", i, s.Status)
		}
		if s.EstimatedDurationMinutes != 30 {
			t.Fatalf("stop %d estimate = %d, want 30", i, s.EstimatedDurationMinutes)
		}
	}

	if route.TotalDistanceMiles <= 0 {
		t.Fatalf("distance = %f, want > 0", route.TotalDistanceMiles)
	}
	if route.EstimatedFuelCost <= 0 {
		t.Fatalf("fuel cost = %f, want > 0", route.EstimatedFuelCost)
	}
}

func TestCreateRouteRejectsEmptyAndUngeocodedSets(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUngeocodedCustomer("no-geo")
	l := newTestLifecycle(repo)

	_, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"unknown"},
	})
	if !errors.Is(err, domain.ErrNoEligibleStops) {
		t.Fatalf("unknown customers: err = %v, want ErrNoEligibleStops", err)
	}

	_, err = l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"no-geo"},
	})
	if !errors.Is(err, domain.ErrNoEligibleStops) {
		t.Fatalf("all ungeocoded: err = %v, want ErrNoEligibleStops", err)
	}
}

func TestCreateRouteNamesMissingCoordinates(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer("geo", 0, 1)
	repo.addUngeocodedCustomer("no-geo")
	l := newTestLifecycle(repo)

	_, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"geo", "no-geo"},
	})

	var missing *domain.MissingCoordinatesError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingCoordinatesError", err)
	}
	if len(missing.CustomerIDs) != 1 || missing.CustomerIDs[0] != "no-geo" {
		t.Fatalf("missing = %v, want [no-geo]", missing.CustomerIDs)
	}
}

func TestCreateRouteCompensatesFailedStopSave(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	repo.failSaveStops = true
	l := newTestLifecycle(repo)

	_, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "far"},
	})
	if err == nil {
		t.Fatal("expected error when stop persistence fails")
	}

	if len(repo.routes) != 0 {
		t.Fatalf("route insert was not compensated: %d routes remain", len(repo.routes))
	}
	if len(repo.stops) != 0 {
		t.Fatalf("stops leaked: %d remain", len(repo.stops))
	}
}

func TestAddStopReordersByProximity(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	// Closest to the depot and off the meridian, so it must lead the order
	// and strictly lengthen the trip.
	repo.addCustomer("nearest", 0.3, 0.2)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle", "far"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := l.AddStop(context.Background(), route.ID, "nearest")
	if err != nil {
		t.Fatalf("add stop: %v", err)
	}

	if len(updated.Stops) != 4 {
		t.Fatalf("expected 4 stops, got %d", len(updated.Stops))
	}

	// The new customer is closest to the depot, so it must come first, and
	// stop orders must stay contiguous from 1.
	if updated.Stops[0].CustomerID != "nearest" {
		t.Fatalf("first stop = %s, want nearest", updated.Stops[0].CustomerID)
	}
	for i, s := range updated.Stops {
		if s.Order != i+1 {
			t.Fatalf("stop %d order = %d, want %d", i, s.Order, i+1)
		}
	}

	if updated.TotalDistanceMiles <= route.TotalDistanceMiles {
		t.Fatalf("distance did not grow: %f -> %f", route.TotalDistanceMiles, updated.TotalDistanceMiles)
	}
}

func TestAddStopRejectsDuplicateAndClosedRoutes(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := l.AddStop(context.Background(), route.ID, "near"); !errors.Is(err, domain.ErrDuplicateStop) {
		t.Fatalf("duplicate: err = %v, want ErrDuplicateStop", err)
	}

	if _, err := l.CancelRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := l.AddStop(context.Background(), route.ID, "far"); !errors.Is(err, domain.ErrRouteClosed) {
		t.Fatalf("closed: err = %v, want ErrRouteClosed", err)
	}
}

func TestAddStopRollsBackFailedReorder(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	prevMiles := route.TotalDistanceMiles

	repo.failUpdateOrders = true
	if _, err := l.AddStop(context.Background(), route.ID, "far"); err == nil {
		t.Fatal("expected error when reorder fails")
	}

	reloaded, err := repo.RouteByID(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Stops) != 2 {
		t.Fatalf("stop count after rollback = %d, want 2", len(reloaded.Stops))
	}
	if reloaded.TotalDistanceMiles != prevMiles {
		t.Fatalf("metrics not restored: %f, want %f", reloaded.TotalDistanceMiles, prevMiles)
	}
}

func TestMarkStopSkipRequiresReason(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stopID := route.Stops[0].ID

	_, err = l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID,
		Status: domain.StopSkipped,
	})
	if !errors.Is(err, domain.ErrSkipReasonRequired) {
		t.Fatalf("err = %v, want ErrSkipReasonRequired", err)
	}

	// The failed skip must leave the stop untouched.
	stop, err := repo.StopByID(context.Background(), stopID)
	if err != nil {
		t.Fatalf("reload stop: %v", err)
	}
	if stop.Status != domain.StopPending {
		t.Fatalf("stop status = %s, want pending", stop.Status)
	}
	if stop.SkipReason != "" {
		t.Fatalf("skip reason = %q, want empty", stop.SkipReason)
	}
}

func TestMarkStopCompletedRecordsActuals(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	base := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The crew app reports the true arrival, a few minutes after the fact.
	arrival := base.Add(5 * time.Minute)
	stopID := route.Stops[0].ID
	started, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID, Status: domain.StopInProgress, ArrivalTime: &arrival,
	})
	if err != nil {
		t.Fatalf("in_progress: %v", err)
	}
	if started.ActualArrivalTime == nil || !started.ActualArrivalTime.Equal(arrival) {
		t.Fatalf("arrival = %v, want %v", started.ActualArrivalTime, arrival)
	}

	current = base.Add(25 * time.Minute)
	stop, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID, Status: domain.StopCompleted, ServiceNotes: "gate code 4411",
	})
	if err != nil {
		t.Fatalf("completed: %v", err)
	}

	if stop.ActualDurationMinutes == nil || *stop.ActualDurationMinutes != 20 {
		t.Fatalf("actual duration = %v, want 20 (reported arrival to departure)", stop.ActualDurationMinutes)
	}
	if stop.CompletedAt == nil || !stop.CompletedAt.Equal(current) {
		t.Fatalf("completed at = %v, want %v", stop.CompletedAt, current)
	}
	if stop.ServiceNotes != "gate code 4411" {
		t.Fatalf("notes = %q", stop.ServiceNotes)
	}
}

func TestResolvingLastStopCompletesRouteOnce(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	base := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	current = base.Add(30 * time.Minute)
	if _, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: route.Stops[0].ID, Status: domain.StopCompleted,
	}); err != nil {
		t.Fatalf("first stop: %v", err)
	}

	mid, err := repo.RouteByID(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if mid.Status != domain.RouteInProgress {
		t.Fatalf("route completed early: status = %s", mid.Status)
	}

	current = base.Add(60 * time.Minute)
	if _, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: route.Stops[1].ID, Status: domain.StopSkipped, SkipReason: "gate locked",
	}); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	final, err := repo.RouteByID(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Status != domain.RouteCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.EndTime == nil || !final.EndTime.Equal(current) {
		t.Fatalf("end time = %v, want %v", final.EndTime, current)
	}

	records := repo.times[route.ID]
	if len(records) != 1 {
		t.Fatalf("time records = %d, want exactly 1", len(records))
	}
	if records[0].DurationMinutes != 60 {
		t.Fatalf("recorded duration = %d, want 60", records[0].DurationMinutes)
	}
	if final.AverageDurationMinutes == nil || *final.AverageDurationMinutes != 60 {
		t.Fatalf("average = %v, want 60", final.AverageDurationMinutes)
	}
}

func TestCompleteRouteIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, already, err := l.CompleteRoute(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if already {
		t.Fatal("first completion reported alreadyCompleted")
	}

	_, already, err = l.CompleteRoute(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !already {
		t.Fatal("second completion did not report alreadyCompleted")
	}

	if n := len(repo.times[route.ID]); n != 1 {
		t.Fatalf("time records = %d, want exactly 1", n)
	}
}

func TestCreateRouteCollapsesDuplicateCustomerIDs(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek:   "monday",
		Date:        "2026-09-07",
		CustomerIDs: []string{"near", "near", "middle", "near"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(route.Stops) != 2 {
		t.Fatalf("stop count = %d, want 2", len(route.Stops))
	}
	seen := make(map[string]bool)
	for _, s := range route.Stops {
		if seen[s.CustomerID] {
			t.Fatalf("customer %s appears on the route twice", s.CustomerID)
		}
		seen[s.CustomerID] = true
	}
}

func TestCompleteRouteSurvivesHistoryAppendFailure(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// History writes are best effort: losing a route_times row must not fail
	// the completion whose status is already persisted.
	repo.failAppendTime = true
	completed, already, err := l.CompleteRoute(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("complete with failing history: %v", err)
	}
	if already {
		t.Fatal("first completion reported alreadyCompleted")
	}
	if completed.Status != domain.RouteCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.EndTime == nil {
		t.Fatal("end time not set")
	}

	reloaded, err := repo.RouteByID(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.RouteCompleted {
		t.Fatalf("persisted status = %s, want completed", reloaded.Status)
	}
	if n := repo.timeRecordCount(route.ID); n != 0 {
		t.Fatalf("time records = %d, want 0 after forced failure", n)
	}
}

func TestConcurrentStopUpdatesCompleteRouteOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer("a", 0, 0.5)
	repo.addCustomer("b", 0, 1)
	repo.addCustomer("c", 0, 1.5)
	repo.addCustomer("d", 0, 2)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"a", "b", "c", "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Every crew member's phone reports its stop at once. The per-route lock
	// must serialize the updates so completion fires exactly once.
	var wg sync.WaitGroup
	for _, s := range route.Stops {
		wg.Add(1)
		go func(stopID string) {
			defer wg.Done()
			if _, err := l.MarkStopStatus(context.Background(), MarkStopInput{
				StopID: stopID, Status: domain.StopCompleted,
			}); err != nil {
				t.Errorf("mark stop %s: %v", stopID, err)
			}
		}(s.ID)
	}
	wg.Wait()

	final, err := repo.RouteByID(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Status != domain.RouteCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if n := repo.timeRecordCount(route.ID); n != 1 {
		t.Fatalf("time records = %d, want exactly 1", n)
	}
	for i, s := range final.Stops {
		if s.Order != i+1 {
			t.Fatalf("stop %d order = %d, want %d", i, s.Order, i+1)
		}
		if s.Status != domain.StopCompleted {
			t.Fatalf("stop %d status = %s, want completed", i, s.Status)
		}
	}
}

func TestMarkStopOnCompletedRouteFails(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := l.CompleteRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err = l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: route.Stops[0].ID, Status: domain.StopCompleted,
	})
	if !errors.Is(err, domain.ErrRouteClosed) {
		t.Fatalf("err = %v, want ErrRouteClosed", err)
	}
}

func TestUndoStopClearsActuals(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near", "middle"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.StartRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	stopID := route.Stops[0].ID
	if _, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID, Status: domain.StopInProgress,
	}); err != nil {
		t.Fatalf("in_progress: %v", err)
	}
	if _, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID, Status: domain.StopCompleted,
	}); err != nil {
		t.Fatalf("completed: %v", err)
	}

	stop, err := l.MarkStopStatus(context.Background(), MarkStopInput{
		StopID: stopID, Status: domain.StopPending,
	})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}

	if stop.Status != domain.StopPending {
		t.Fatalf("status = %s, want pending", stop.Status)
	}
	if stop.CompletedAt != nil || stop.ActualArrivalTime != nil ||
		stop.ActualDepartureTime != nil || stop.ActualDurationMinutes != nil {
		t.Fatalf("actuals not cleared: %+v", stop)
	}
}

func TestRouteTransitionGuards(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.CancelRoute(context.Background(), route.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var transition *domain.TransitionError
	if _, err := l.StartRoute(context.Background(), route.ID); !errors.As(err, &transition) {
		t.Fatalf("start after cancel: err = %v, want TransitionError", err)
	}
	if _, _, err := l.CompleteRoute(context.Background(), route.ID); !errors.As(err, &transition) {
		t.Fatalf("complete after cancel: err = %v, want TransitionError", err)
	}
}

func TestAssignDriverLooksUpCrew(t *testing.T) {
	repo := newMemoryRepo()
	seedMeridianCustomers(repo)
	l := newTestLifecycle(repo)

	route, err := l.CreateRoute(context.Background(), CreateRouteInput{
		DayOfWeek: "monday", Date: "2026-09-07", CustomerIDs: []string{"near"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := l.AssignDriver(context.Background(), route.ID, "crew-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if updated.DriverID != "crew-1" || updated.DriverName != "Mike Torres" {
		t.Fatalf("driver = %s/%s, want crew-1/Mike Torres", updated.DriverID, updated.DriverName)
	}

	if _, err := l.AssignDriver(context.Background(), route.ID, "crew-404"); !errors.Is(err, domain.ErrCrewNotFound) {
		t.Fatalf("unknown crew: err = %v, want ErrCrewNotFound", err)
	}

	cleared, err := l.AssignDriver(context.Background(), route.ID, "")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if cleared.DriverID != "" || cleared.DriverName != "" {
		t.Fatalf("driver not cleared: %s/%s", cleared.DriverID, cleared.DriverName)
	}
}
