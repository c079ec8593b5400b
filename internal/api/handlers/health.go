package handlers

import "net/http"

// Health is the liveness endpoint. The router restricts it to GET.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
