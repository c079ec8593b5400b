package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/ports"
)

// SQLite-backed implementation of the RouteRepository and CrewDirectory ports.
type SqliteRouteRepository struct{ DB *sql.DB }

func NewSqliteRouteRepository(db *sql.DB) *SqliteRouteRepository {
	return &SqliteRouteRepository{DB: db}
}

// waypointsDoc is the JSON shape stored in routes.optimized_waypoints.
type waypointsDoc struct {
	Waypoints []waypointCoord `json:"waypoints"`
	Order     []int           `json:"order"`
}

type waypointCoord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *SqliteRouteRepository) CustomerCoordinates(ctx context.Context, ids []string) ([]domain.CandidateStop, error) {
	if s.DB == nil {
		return nil, errors.New("route repository: DB is nil")
	}
	if len(ids) == 0 {
		return []domain.CandidateStop{}, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`
	SELECT customer_id, latitude, longitude, archived_at
	FROM customers
	WHERE customer_id IN (%s);
	`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("customer coordinates: query customers table: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.CandidateStop, len(ids))
	for rows.Next() {
		var id string
		var lat, lng sql.NullFloat64
		var archivedAt sql.NullString
		if err := rows.Scan(&id, &lat, &lng, &archivedAt); err != nil {
			return nil, fmt.Errorf("customer coordinates: scan row: %w", err)
		}

		c := domain.CandidateStop{CustomerID: id, Archived: archivedAt.Valid}
		if lat.Valid && lng.Valid {
			c.Coordinate = &domain.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
		}
		byID[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customer coordinates: row iteration: %w", err)
	}

	// Preserve caller order; unknown ids are omitted.
	out := make([]domain.CandidateStop, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SqliteRouteRepository) SaveRoute(ctx context.Context, route *domain.Route) error {
	waypoints, err := marshalWaypoints(route.Waypoints, route.WaypointOrder)
	if err != nil {
		return fmt.Errorf("save route: %w", err)
	}

	query := `
	INSERT INTO routes (
		route_id, name, day_of_week, date, status, driver_id, driver_name,
		total_distance_miles, total_distance_km, total_duration_minutes,
		estimated_fuel_cost, optimized_waypoints, start_time, end_time,
		average_duration_minutes, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = s.DB.ExecContext(ctx, query,
		route.ID,
		nullString(route.Name),
		route.DayOfWeek,
		route.Date,
		string(route.Status),
		nullString(route.DriverID),
		nullString(route.DriverName),
		route.TotalDistanceMiles,
		route.TotalDistanceMiles*1.60934,
		route.TotalDurationMinutes,
		route.EstimatedFuelCost,
		waypoints,
		nullTime(route.StartTime),
		nullTime(route.EndTime),
		route.AverageDurationMinutes,
		timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save route: insert route_id=%s: %w", route.ID, err)
	}
	return nil
}

func (s *SqliteRouteRepository) DeleteRoute(ctx context.Context, routeID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete route: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_stops WHERE route_id = ?;`, routeID); err != nil {
		return fmt.Errorf("delete route: delete stops: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE route_id = ?;`, routeID); err != nil {
		return fmt.Errorf("delete route: delete route: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete route: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteRouteRepository) SaveStops(ctx context.Context, stops []*domain.Stop) error {
	if len(stops) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save stops: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO route_stops (
		stop_id, route_id, customer_id, stop_order, status,
		estimated_duration_minutes, actual_duration_minutes,
		actual_arrival_time, actual_departure_time, completed_at,
		service_notes, skip_reason
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("save stops: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, stop := range stops {
		_, err := stmt.ExecContext(ctx,
			stop.ID,
			stop.RouteID,
			stop.CustomerID,
			stop.Order,
			string(stop.Status),
			stop.EstimatedDurationMinutes,
			stop.ActualDurationMinutes,
			nullTime(stop.ActualArrivalTime),
			nullTime(stop.ActualDepartureTime),
			nullTime(stop.CompletedAt),
			nullString(stop.ServiceNotes),
			nullString(stop.SkipReason),
		)
		if err != nil {
			return fmt.Errorf("save stops: insert stop_id=%s: %w", stop.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save stops: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteRouteRepository) DeleteStop(ctx context.Context, stopID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM route_stops WHERE stop_id = ?;`, stopID); err != nil {
		return fmt.Errorf("delete stop: stop_id=%s: %w", stopID, err)
	}
	return nil
}

func (s *SqliteRouteRepository) RouteByID(ctx context.Context, routeID string) (*domain.Route, error) {
	query := `
	SELECT
		route_id, name, day_of_week, date, status, driver_id, driver_name,
		total_distance_miles, total_duration_minutes, estimated_fuel_cost,
		optimized_waypoints, start_time, end_time, average_duration_minutes
	FROM routes
	WHERE route_id = ?;
	`

	var (
		route      domain.Route
		name       sql.NullString
		driverID   sql.NullString
		driverName sql.NullString
		waypoints  sql.NullString
		startTime  sql.NullString
		endTime    sql.NullString
		average    sql.NullFloat64
		status     string
	)

	err := s.DB.QueryRowContext(ctx, query, routeID).Scan(
		&route.ID, &name, &route.DayOfWeek, &route.Date, &status,
		&driverID, &driverName,
		&route.TotalDistanceMiles, &route.TotalDurationMinutes, &route.EstimatedFuelCost,
		&waypoints, &startTime, &endTime, &average,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("route by id: query route_id=%s: %w", routeID, err)
	}

	route.Name = name.String
	route.DriverID = driverID.String
	route.DriverName = driverName.String
	route.Status = domain.RouteStatus(status)
	if average.Valid {
		route.AverageDurationMinutes = &average.Float64
	}

	if route.StartTime, err = parseNullTime(startTime); err != nil {
		return nil, fmt.Errorf("route by id: parse start_time: %w", err)
	}
	if route.EndTime, err = parseNullTime(endTime); err != nil {
		return nil, fmt.Errorf("route by id: parse end_time: %w", err)
	}
	if route.Waypoints, route.WaypointOrder, err = unmarshalWaypoints(waypoints); err != nil {
		return nil, fmt.Errorf("route by id: parse waypoints: %w", err)
	}

	if route.Stops, err = s.stopsByRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return &route, nil
}

func (s *SqliteRouteRepository) stopsByRoute(ctx context.Context, routeID string) ([]*domain.Stop, error) {
	query := `
	SELECT
		stop_id, route_id, customer_id, stop_order, status,
		estimated_duration_minutes, actual_duration_minutes,
		actual_arrival_time, actual_departure_time, completed_at,
		service_notes, skip_reason
	FROM route_stops
	WHERE route_id = ?
	ORDER BY stop_order;
	`
	rows, err := s.DB.QueryContext(ctx, query, routeID)
	if err != nil {
		return nil, fmt.Errorf("stops by route: query route_id=%s: %w", routeID, err)
	}
	defer rows.Close()

	stops := make([]*domain.Stop, 0, 16)
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("stops by route: %w", err)
		}
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stops by route: row iteration: %w", err)
	}
	return stops, nil
}

func (s *SqliteRouteRepository) StopByID(ctx context.Context, stopID string) (*domain.Stop, error) {
	query := `
	SELECT
		stop_id, route_id, customer_id, stop_order, status,
		estimated_duration_minutes, actual_duration_minutes,
		actual_arrival_time, actual_departure_time, completed_at,
		service_notes, skip_reason
	FROM route_stops
	WHERE stop_id = ?;
	`
	stop, err := scanStop(s.DB.QueryRowContext(ctx, query, stopID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stop by id: stop_id=%s: %w", stopID, err)
	}
	return stop, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStop(row rowScanner) (*domain.Stop, error) {
	var (
		stop          domain.Stop
		status        string
		actualMinutes sql.NullInt64
		arrival       sql.NullString
		departure     sql.NullString
		completed     sql.NullString
		notes         sql.NullString
		skipReason    sql.NullString
	)

	err := row.Scan(
		&stop.ID, &stop.RouteID, &stop.CustomerID, &stop.Order, &status,
		&stop.EstimatedDurationMinutes, &actualMinutes,
		&arrival, &departure, &completed, &notes, &skipReason,
	)
	if err != nil {
		return nil, err
	}

	stop.Status = domain.StopStatus(status)
	stop.ServiceNotes = notes.String
	stop.SkipReason = skipReason.String
	if actualMinutes.Valid {
		minutes := int(actualMinutes.Int64)
		stop.ActualDurationMinutes = &minutes
	}

	if stop.ActualArrivalTime, err = parseNullTime(arrival); err != nil {
		return nil, fmt.Errorf("parse actual_arrival_time: %w", err)
	}
	if stop.ActualDepartureTime, err = parseNullTime(departure); err != nil {
		return nil, fmt.Errorf("parse actual_departure_time: %w", err)
	}
	if stop.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &stop, nil
}

func (s *SqliteRouteRepository) UpdateRoute(ctx context.Context, route *domain.Route) error {
	waypoints, err := marshalWaypoints(route.Waypoints, route.WaypointOrder)
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}

	query := `
	UPDATE routes SET
		name = ?, day_of_week = ?, date = ?, status = ?,
		driver_id = ?, driver_name = ?,
		total_distance_miles = ?, total_distance_km = ?,
		total_duration_minutes = ?, estimated_fuel_cost = ?,
		optimized_waypoints = ?, start_time = ?, end_time = ?,
		average_duration_minutes = ?, updated_at = ?
	WHERE route_id = ?;
	`
	res, err := s.DB.ExecContext(ctx, query,
		nullString(route.Name),
		route.DayOfWeek,
		route.Date,
		string(route.Status),
		nullString(route.DriverID),
		nullString(route.DriverName),
		route.TotalDistanceMiles,
		route.TotalDistanceMiles*1.60934,
		route.TotalDurationMinutes,
		route.EstimatedFuelCost,
		waypoints,
		nullTime(route.StartTime),
		nullTime(route.EndTime),
		route.AverageDurationMinutes,
		timestamp(time.Now()),
		route.ID,
	)
	if err != nil {
		return fmt.Errorf("update route: route_id=%s: %w", route.ID, err)
	}
	return ensureRowUpdated(res, domain.ErrRouteNotFound)
}

func (s *SqliteRouteRepository) UpdateStop(ctx context.Context, stop *domain.Stop) error {
	query := `
	UPDATE route_stops SET
		status = ?, estimated_duration_minutes = ?, actual_duration_minutes = ?,
		actual_arrival_time = ?, actual_departure_time = ?, completed_at = ?,
		service_notes = ?, skip_reason = ?
	WHERE stop_id = ?;
	`
	res, err := s.DB.ExecContext(ctx, query,
		string(stop.Status),
		stop.EstimatedDurationMinutes,
		stop.ActualDurationMinutes,
		nullTime(stop.ActualArrivalTime),
		nullTime(stop.ActualDepartureTime),
		nullTime(stop.CompletedAt),
		nullString(stop.ServiceNotes),
		nullString(stop.SkipReason),
		stop.ID,
	)
	if err != nil {
		return fmt.Errorf("update stop: stop_id=%s: %w", stop.ID, err)
	}
	return ensureRowUpdated(res, domain.ErrStopNotFound)
}

func (s *SqliteRouteRepository) UpdateStopOrders(ctx context.Context, routeID string, orders []ports.StopOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update stop orders: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE route_stops SET stop_order = ? WHERE stop_id = ? AND route_id = ?;
	`)
	if err != nil {
		return fmt.Errorf("update stop orders: prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx, o.Order, o.StopID, routeID); err != nil {
			return fmt.Errorf("update stop orders: stop_id=%s: %w", o.StopID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update stop orders: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteRouteRepository) UpdateRouteMetrics(ctx context.Context, routeID string, m domain.RouteMetrics) error {
	waypoints, err := marshalWaypoints(m.Waypoints, m.WaypointOrder)
	if err != nil {
		return fmt.Errorf("update route metrics: %w", err)
	}

	query := `
	UPDATE routes SET
		total_distance_miles = ?, total_distance_km = ?,
		total_duration_minutes = ?, estimated_fuel_cost = ?,
		optimized_waypoints = ?, updated_at = ?
	WHERE route_id = ?;
	`
	res, err := s.DB.ExecContext(ctx, query,
		m.TotalDistanceMiles,
		m.TotalDistanceMiles*1.60934,
		m.TotalDurationMinutes,
		m.EstimatedFuelCost,
		waypoints,
		timestamp(time.Now()),
		routeID,
	)
	if err != nil {
		return fmt.Errorf("update route metrics: route_id=%s: %w", routeID, err)
	}
	return ensureRowUpdated(res, domain.ErrRouteNotFound)
}

func (s *SqliteRouteRepository) AppendRouteTimeRecord(ctx context.Context, rec domain.RouteTimeRecord) error {
	query := `
	INSERT INTO route_times (route_id, started_at, ended_at, duration_minutes)
	VALUES (?, ?, ?, ?);
	`
	_, err := s.DB.ExecContext(ctx, query,
		rec.RouteID,
		timestamp(rec.StartedAt),
		timestamp(rec.EndedAt),
		rec.DurationMinutes,
	)
	if err != nil {
		return fmt.Errorf("append route time: route_id=%s: %w", rec.RouteID, err)
	}
	return nil
}

func (s *SqliteRouteRepository) RouteTimeRecords(ctx context.Context, routeID string) ([]domain.RouteTimeRecord, error) {
	query := `
	SELECT route_id, started_at, ended_at, duration_minutes
	FROM route_times
	WHERE route_id = ?
	ORDER BY started_at;
	`
	rows, err := s.DB.QueryContext(ctx, query, routeID)
	if err != nil {
		return nil, fmt.Errorf("route time records: query route_id=%s: %w", routeID, err)
	}
	defer rows.Close()

	records := make([]domain.RouteTimeRecord, 0, 8)
	for rows.Next() {
		var rec domain.RouteTimeRecord
		var started, ended string
		if err := rows.Scan(&rec.RouteID, &started, &ended, &rec.DurationMinutes); err != nil {
			return nil, fmt.Errorf("route time records: scan row: %w", err)
		}
		if rec.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, fmt.Errorf("route time records: parse started_at: %w", err)
		}
		if rec.EndedAt, err = parseTimestamp(ended); err != nil {
			return nil, fmt.Errorf("route time records: parse ended_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("route time records: row iteration: %w", err)
	}
	return records, nil
}

// CrewMemberName implements the CrewDirectory port.
func (s *SqliteRouteRepository) CrewMemberName(ctx context.Context, crewID string) (string, error) {
	var name string
	err := s.DB.QueryRowContext(ctx, `SELECT name FROM crew_members WHERE crew_id = ?;`, crewID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrCrewNotFound
	}
	if err != nil {
		return "", fmt.Errorf("crew member name: crew_id=%s: %w", crewID, err)
	}
	return name, nil
}

func marshalWaypoints(coords []domain.Coordinate, order []int) (string, error) {
	doc := waypointsDoc{Waypoints: make([]waypointCoord, 0, len(coords)), Order: order}
	for _, c := range coords {
		doc.Waypoints = append(doc.Waypoints, waypointCoord{Lat: c.Lat, Lng: c.Lng})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal waypoints: %w", err)
	}
	return string(raw), nil
}

func unmarshalWaypoints(raw sql.NullString) ([]domain.Coordinate, []int, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil, nil
	}

	var doc waypointsDoc
	if err := json.Unmarshal([]byte(raw.String), &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal waypoints: %w", err)
	}

	coords := make([]domain.Coordinate, 0, len(doc.Waypoints))
	for _, w := range doc.Waypoints {
		coords = append(coords, domain.Coordinate{Lat: w.Lat, Lng: w.Lng})
	}
	return coords, doc.Order, nil
}

func ensureRowUpdated(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver without RowsAffected support; assume success
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestamp(*t)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
