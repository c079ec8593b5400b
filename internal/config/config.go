package config

import (
	"os"
	"strconv"

	"lawn-route-service/internal/domain"
)

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetFloat returns the environment value parsed as a float, or fallback when
// unset or unparseable.
func GetFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetInt returns the environment value parsed as an int, or fallback when
// unset or unparseable.
func GetInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// DepotFromEnv reads the depot location. Defaults point at the shop in
// St Peters, MO.
func DepotFromEnv() domain.Depot {
	return domain.Depot{
		Coordinate: domain.Coordinate{
			Lat: GetFloat("DEPOT_LAT", 38.7839),
			Lng: GetFloat("DEPOT_LNG", -90.4974),
		},
		Address: Get("DEPOT_ADDRESS", "16 Cherokee Dr, St Peters, MO"),
	}
}
