package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Initialize the database schema.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createCustomersQuery := `
	CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		latitude REAL,
		longitude REAL,
		archived_at TEXT
	);
	`

	createCrewQuery := `
	CREATE TABLE IF NOT EXISTS crew_members (
		crew_id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	`

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		name TEXT,
		day_of_week TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		driver_id TEXT,
		driver_name TEXT,
		total_distance_miles REAL NOT NULL DEFAULT 0,
		total_distance_km REAL NOT NULL DEFAULT 0,
		total_duration_minutes INTEGER NOT NULL DEFAULT 0,
		estimated_fuel_cost REAL NOT NULL DEFAULT 0,
		optimized_waypoints TEXT,
		start_time TEXT,
		end_time TEXT,
		average_duration_minutes REAL,
		updated_at TEXT
	);
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS route_stops (
		stop_id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(route_id),
		customer_id TEXT NOT NULL,
		stop_order INTEGER NOT NULL,
		status TEXT NOT NULL,
		estimated_duration_minutes INTEGER NOT NULL,
		actual_duration_minutes INTEGER,
		actual_arrival_time TEXT,
		actual_departure_time TEXT,
		completed_at TEXT,
		service_notes TEXT,
		skip_reason TEXT,
		UNIQUE (route_id, customer_id)
	);
	`

	createRouteTimesQuery := `
	CREATE TABLE IF NOT EXISTS route_times (
		route_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL
	);
	`

	createAuditLogQuery := `
	CREATE TABLE IF NOT EXISTS audit_log (
		audit_id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	);
	`

	createStopIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_route_stops_route_order
	ON route_stops(route_id, stop_order);
	`

	createTimesIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_route_times_route
	ON route_times(route_id);
	`

	statements := []string{
		createCustomersQuery,
		createCrewQuery,
		createRoutesQuery,
		createStopsQuery,
		createRouteTimesQuery,
		createAuditLogQuery,
		createStopIndexQuery,
		createTimesIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type CustomerSeed struct {
	CustomerID string   `json:"customer_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

type CrewSeed struct {
	CrewID string `json:"crew_id"`
	Name   string `json:"name"`
}

type SeedFile struct {
	Customers []CustomerSeed `json:"customers"`
	Crew      []CrewSeed     `json:"crew"`
}

// Populate the database with customer and crew data from a JSON file.
func SeedFromJSON(db *sql.DB, jsonPath string) error {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed data: read %q: %w", jsonPath, err)
	}

	var data SeedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("seed data: parse json: %w", err)
	}

	for i, c := range data.Customers {
		if strings.TrimSpace(c.CustomerID) == "" {
			return fmt.Errorf("seed data: customer at index %d: customer_id cannot be empty", i+1)
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("seed data: customer at index %d: name cannot be empty", i+1)
		}
	}
	for i, c := range data.Crew {
		if strings.TrimSpace(c.CrewID) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("seed data: crew member at index %d: crew_id and name are required", i+1)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed data: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	customerStmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO customers (customer_id, name, address, latitude, longitude)
	VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("seed data: prepare customer insert: %w", err)
	}
	defer customerStmt.Close()

	for _, c := range data.Customers {
		if _, err := customerStmt.Exec(c.CustomerID, c.Name, c.Address, c.Latitude, c.Longitude); err != nil {
			return fmt.Errorf("seed data: insert customer_id=%s: %w", c.CustomerID, err)
		}
	}

	crewStmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO crew_members (crew_id, name)
	VALUES (?, ?);
	`)
	if err != nil {
		return fmt.Errorf("seed data: prepare crew insert: %w", err)
	}
	defer crewStmt.Close()

	for _, c := range data.Crew {
		if _, err := crewStmt.Exec(c.CrewID, c.Name); err != nil {
			return fmt.Errorf("seed data: insert crew_id=%s: %w", c.CrewID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed data: commit tx: %w", err)
	}

	return nil
}
