package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"lawn-route-service/internal/adapters/repositories"
	"lawn-route-service/internal/config"
	"lawn-route-service/internal/platform/db"
)

// dbtool provisions the hosted Postgres instance: schema plus customer and
// crew seed data. The server itself runs on SQLite; this tool exists for
// shared deployments where several crews hit one database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	log.Println("Initializing database schema...")
	if err := initSchema(conn); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	seedPath := config.Get("SEED_PATH", "data/seeds/customers.json")
	log.Println("Seeding database...")
	if err := seed(conn, seedPath); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Println("Seeding complete.")
}

func initSchema(conn *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			archived_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS crew_members (
			crew_id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS routes (
			route_id TEXT PRIMARY KEY,
			name TEXT,
			day_of_week TEXT NOT NULL,
			date TEXT NOT NULL,
			status TEXT NOT NULL,
			driver_id TEXT,
			driver_name TEXT,
			total_distance_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_duration_minutes INTEGER NOT NULL DEFAULT 0,
			estimated_fuel_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			optimized_waypoints TEXT,
			start_time TIMESTAMPTZ,
			end_time TIMESTAMPTZ,
			average_duration_minutes DOUBLE PRECISION,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS route_stops (
			stop_id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL REFERENCES routes(route_id),
			customer_id TEXT NOT NULL,
			stop_order INTEGER NOT NULL,
			status TEXT NOT NULL,
			estimated_duration_minutes INTEGER NOT NULL,
			actual_duration_minutes INTEGER,
			actual_arrival_time TIMESTAMPTZ,
			actual_departure_time TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			service_notes TEXT,
			skip_reason TEXT,
			UNIQUE (route_id, customer_id)
		);`,
		`CREATE TABLE IF NOT EXISTS route_times (
			route_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_minutes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			audit_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_route_stops_route_order
			ON route_stops(route_id, stop_order);`,
		`CREATE INDEX IF NOT EXISTS idx_route_times_route
			ON route_times(route_id);`,
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

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

func seed(conn *sql.DB, jsonPath string) error {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed data: read %q: %w", jsonPath, err)
	}

	var data repositories.SeedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("seed data: parse json: %w", err)
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("seed data: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range data.Customers {
		_, err := tx.Exec(`
		INSERT INTO customers (customer_id, name, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude;
		`, c.CustomerID, c.Name, c.Address, c.Latitude, c.Longitude)
		if err != nil {
			return fmt.Errorf("seed data: insert customer_id=%s: %w", c.CustomerID, err)
		}
	}

	for _, c := range data.Crew {
		_, err := tx.Exec(`
		INSERT INTO crew_members (crew_id, name)
		VALUES ($1, $2)
		ON CONFLICT (crew_id) DO UPDATE SET name = EXCLUDED.name;
		`, c.CrewID, c.Name)
		if err != nil {
			return fmt.Errorf("seed data: insert crew_id=%s: %w", c.CrewID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed data: commit tx: %w", err)
	}
	return nil
}
