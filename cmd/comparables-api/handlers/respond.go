// Package handlers provides HTTP handlers for the comparables API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/carmarket/comparables-engine/internal/retrieval"
)

// errorEnvelope is the failure payload. Comparables failures attach the
// retrieval attempt trace so callers can see which relaxation steps ran.
type errorEnvelope struct {
	Error string           `json:"error"`
	Debug *retrieval.Debug `json:"debug,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures past this point have nowhere to go; the status line
	// is already on the wire.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}
