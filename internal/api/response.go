// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Response is the envelope every REST endpoint answers with. RetryAfter is
// set only on throttled or backing-off failures and mirrors the Retry-After
// header, in seconds.
type Response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	RetryAfter int         `json:"retry_after_seconds,omitempty"`
}

// WriteJSON encodes v with the shared CORS headers and the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteSuccess answers 200 with data wrapped in the envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteError answers status with a failed envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{Success: false, Error: message})
}

// WriteRetryableError answers status with a failed envelope plus a
// Retry-After header. retryAfter is floored at one second so clients never
// see a zero backoff.
func WriteRetryableError(w http.ResponseWriter, status int, message string, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteJSON(w, status, Response{Success: false, Error: message, RetryAfter: secs})
}

// WriteBadRequest answers 400.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteInternalError answers 500.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteMethodNotAllowed answers 405.
func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, message)
}
