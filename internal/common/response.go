package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error payload returned by the API.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Ack is the acknowledgment body returned to webhook senders.
type Ack struct {
	Received bool `json:"received"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response. Details are omitted when empty.
func JSONError(w http.ResponseWriter, status int, message, details string) {
	JSON(w, status, ErrorBody{Error: message, Details: details})
}

// Acknowledge renders the {"received": true} body with HTTP 200.
func Acknowledge(w http.ResponseWriter) {
	JSON(w, http.StatusOK, Ack{Received: true})
}
