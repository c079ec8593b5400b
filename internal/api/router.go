package api

import (
	"net/http"

	"lawn-route-service/internal/api/handlers"
	"lawn-route-service/internal/services"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(lifecycle *services.Lifecycle) http.Handler {
	mux := http.NewServeMux()

	routeHandler := &handlers.RouteHandler{Lifecycle: lifecycle}
	stopHandler := &handlers.StopHandler{Lifecycle: lifecycle}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /routes", routeHandler.Create)
	mux.HandleFunc("GET /routes/{id}", routeHandler.Get)
	mux.HandleFunc("POST /routes/{id}/stops", routeHandler.AddStop)
	mux.HandleFunc("POST /routes/{id}/start", routeHandler.Start)
	mux.HandleFunc("POST /routes/{id}/complete", routeHandler.Complete)
	mux.HandleFunc("POST /routes/{id}/cancel", routeHandler.Cancel)
	mux.HandleFunc("POST /routes/{id}/driver", routeHandler.AssignDriver)

	mux.HandleFunc("PATCH /stops/{id}", stopHandler.Update)

	return loggingMiddleware(mux)
}
