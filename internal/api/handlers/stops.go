package handlers

import (
	"net/http"

	"lawn-route-service/internal/api/dto"
	"lawn-route-service/internal/domain"
	"lawn-route-service/internal/services"
)

// StopHandler exposes stop-level status updates.
type StopHandler struct {
	Lifecycle *services.Lifecycle
}

// Update applies one status transition to a stop. Completing the last open
// stop on a route completes the route as a side effect.
func (h *StopHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateStopRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, ok := parseStopStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "status must be one of pending, in_progress, completed, skipped, cancelled")
		return
	}

	stop, err := h.Lifecycle.MarkStopStatus(r.Context(), services.MarkStopInput{
		StopID:       r.PathValue("id"),
		Status:       status,
		SkipReason:   req.SkipReason,
		ServiceNotes: req.ServiceNotes,
		ArrivalTime:  req.ArrivalTime,
	})
	if err != nil {
		writeDomainError(w, r, "update stop", err)
		return
	}

	writeJSON(w, r, http.StatusOK, stopResponse(stop))
}

func parseStopStatus(s string) (domain.StopStatus, bool) {
	switch domain.StopStatus(s) {
	case domain.StopPending, domain.StopInProgress, domain.StopCompleted,
		domain.StopSkipped, domain.StopCancelled:
		return domain.StopStatus(s), true
	}
	return "", false
}
