package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON encodes v with the given status. An encode failure after the
// header is sent can only be logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

// writeError renders the uniform {"error": msg} body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}
