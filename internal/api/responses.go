package api

import (
	"encoding/json"
	"net/http"

	"github.com/ponderlabs/ponder/internal/domain"
)

// statusClientClosedRequest is the nginx-convention status for a request the
// client abandoned before the response began.
const statusClientClosedRequest = 499

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError writes an APIError as JSON with its mapped status code.
func respondError(w http.ResponseWriter, err *domain.APIError) {
	respondJSON(w, err.HTTPStatusCode(), err)
}
