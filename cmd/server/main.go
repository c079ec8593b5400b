package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"lawn-route-service/internal/adapters/cache"
	"lawn-route-service/internal/adapters/directions"
	"lawn-route-service/internal/adapters/repositories"
	"lawn-route-service/internal/api"
	"lawn-route-service/internal/config"
	"lawn-route-service/internal/ports"
	"lawn-route-service/internal/services"
)

// main is the application composition root.
// It wires concrete adapters (SQLite, Google Directions, Redis) behind ports
// and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	dbPath := config.Get("DB_PATH", "data/app.db")
	seedPath := config.Get("SEED_PATH", "data/seeds/customers.json")
	port := config.Get("PORT", "8080")

	apiKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	if strings.TrimSpace(apiKey) == "" {
		// Not fatal: the optimizer degrades to nearest-neighbor estimates.
		log.Println("GOOGLE_MAPS_API_KEY not set; route metrics will be estimated")
	}

	db, err := openDB(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	// Initialize schema and seed demo data on startup for local runs.
	if err := initAndSeed(db, seedPath); err != nil {
		log.Fatal(err)
	}

	var planCache ports.RouteCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		ttl := time.Duration(config.GetInt("ROUTE_CACHE_TTL_MINUTES", 24*60)) * time.Minute
		planCache = cache.NewRedisRouteCache(client, ttl)
		log.Printf("Route plan cache enabled addr=%s", addr)
	}

	provider := directions.NewGoogleDirections(apiKey)
	optimizer := services.NewOptimizer(provider, planCache, config.GetFloat("COST_PER_MILE", 0.15))

	repo := repositories.NewSqliteRouteRepository(db)
	lifecycle := services.NewLifecycle(repo, optimizer, repo, repositories.NewSqliteAuditLog(db), services.LifecycleConfig{
		Depot:              config.DepotFromEnv(),
		StopServiceMinutes: config.GetInt("STOP_SERVICE_MINUTES", 30),
	})

	router := api.NewRouter(lifecycle)

	// Timeouts are tuned for cold-cache route planning (external API latency).
	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("openDB: open sqlite database %q: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("openDB: verify sqlite connection to %q: %w", dbPath, err)
	}

	return db, nil
}

func initAndSeed(db *sql.DB, seedPath string) error {
	if err := repositories.InitSchema(db); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	if err := repositories.SeedFromJSON(db, seedPath); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	return nil
}
