package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"lawn-route-service/internal/api/dto"
	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/services"
)

// RouteHandler exposes route lifecycle endpoints.
type RouteHandler struct {
	Lifecycle *services.Lifecycle
}

// Create builds and persists a new optimized route from a customer set.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.DayOfWeek) == "" || strings.TrimSpace(req.Date) == "" {
		writeError(w, r, http.StatusBadRequest, "day_of_week and date are required")
		return
	}
	if len(req.CustomerIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "customer_ids must not be empty")
		return
	}

	route, err := h.Lifecycle.CreateRoute(r.Context(), services.CreateRouteInput{
		Name:        req.Name,
		DayOfWeek:   req.DayOfWeek,
		Date:        req.Date,
		CustomerIDs: req.CustomerIDs,
		DriverID:    req.DriverID,
	})
	if err != nil {
		writeDomainError(w, r, "create route", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, routeResponse(route))
}

// Get returns one route with its ordered stops.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	route, err := h.Lifecycle.Route(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, "get route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, routeResponse(route))
}

// AddStop inserts a customer into the route and re-optimizes the order.
func (h *RouteHandler) AddStop(w http.ResponseWriter, r *http.Request) {
	var req dto.AddStopRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		writeError(w, r, http.StatusBadRequest, "customer_id is required")
		return
	}

	route, err := h.Lifecycle.AddStop(r.Context(), r.PathValue("id"), req.CustomerID)
	if err != nil {
		writeDomainError(w, r, "add stop", err)
		return
	}
	writeJSON(w, r, http.StatusOK, routeResponse(route))
}

func (h *RouteHandler) Start(w http.ResponseWriter, r *http.Request) {
	route, err := h.Lifecycle.StartRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, "start route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, routeResponse(route))
}

func (h *RouteHandler) Complete(w http.ResponseWriter, r *http.Request) {
	route, alreadyCompleted, err := h.Lifecycle.CompleteRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, "complete route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.CompleteRouteResponse{
		Route:            routeResponse(route),
		AlreadyCompleted: alreadyCompleted,
	})
}

func (h *RouteHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	route, err := h.Lifecycle.CancelRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, "cancel route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, routeResponse(route))
}

// AssignDriver sets or clears the route's driver.
func (h *RouteHandler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignDriverRequest
	if !decodeBody(w, r, &req) {
		return
	}

	route, err := h.Lifecycle.AssignDriver(r.Context(), r.PathValue("id"), req.DriverID)
	if err != nil {
		writeDomainError(w, r, "assign driver", err)
		return
	}
	writeJSON(w, r, http.StatusOK, routeResponse(route))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s failed: %v", op, err)
		writeError(w, r, status, "internal server error")
		return
	}
	writeError(w, r, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRouteNotFound),
		errors.Is(err, domain.ErrStopNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrCrewNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateStop),
		errors.Is(err, domain.ErrRouteClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoEligibleStops),
		errors.Is(err, domain.ErrSkipReasonRequired),
		errors.Is(err, domain.ErrCustomerArchived):
		return http.StatusBadRequest
	}

	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict
	}
	var missing *domain.MissingCoordinatesError
	if errors.As(err, &missing) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func routeResponse(route *domain.Route) dto.RouteResponse {
	waypoints := make([]dto.CoordinateResponse, 0, len(route.Waypoints))
	for _, wp := range route.Waypoints {
		waypoints = append(waypoints, dto.CoordinateResponse{Lat: wp.Lat, Lng: wp.Lng})
	}

	stops := make([]dto.StopResponse, 0, len(route.Stops))
	for _, s := range route.Stops {
		stops = append(stops, stopResponse(s))
	}

	return dto.RouteResponse{
		RouteID:                route.ID,
		Name:                   route.Name,
		DayOfWeek:              route.DayOfWeek,
		Date:                   route.Date,
		Status:                 string(route.Status),
		DriverID:               route.DriverID,
		DriverName:             route.DriverName,
		TotalDistanceMiles:     route.TotalDistanceMiles,
		TotalDurationMinutes:   route.TotalDurationMinutes,
		EstimatedFuelCost:      route.EstimatedFuelCost,
		Waypoints:              waypoints,
		StartTime:              route.StartTime,
		EndTime:                route.EndTime,
		AverageDurationMinutes: route.AverageDurationMinutes,
		Stops:                  stops,
	}
}

func stopResponse(s *domain.Stop) dto.StopResponse {
	return dto.StopResponse{
		StopID:                   s.ID,
		RouteID:                  s.RouteID,
		CustomerID:               s.CustomerID,
		StopOrder:                s.Order,
		Status:                   string(s.Status),
		EstimatedDurationMinutes: s.EstimatedDurationMinutes,
		ActualDurationMinutes:    s.ActualDurationMinutes,
		ActualArrivalTime:        s.ActualArrivalTime,
		ActualDepartureTime:      s.ActualDepartureTime,
		CompletedAt:              s.CompletedAt,
		ServiceNotes:             s.ServiceNotes,
		SkipReason:               s.SkipReason,
	}
}
