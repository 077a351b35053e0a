// internal/api/response_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"message": "hello"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", w.Header().Get("Content-Type"))
	}

	resp := decodeEnvelope(t, w)
	if !resp.Success || resp.Error != "" {
		t.Errorf("envelope = %+v, want success without error", resp)
	}
	if resp.RetryAfter != 0 {
		t.Errorf("retry_after_seconds = %d, want omitted", resp.RetryAfter)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
	}{
		{"bad request", http.StatusBadRequest, "invalid input"},
		{"forbidden", http.StatusForbidden, "approval required"},
		{"internal error", http.StatusInternalServerError, "database error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.status, tt.message)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := decodeEnvelope(t, w)
			if resp.Success || resp.Error != tt.message {
				t.Errorf("envelope = %+v", resp)
			}
			if w.Header().Get("Retry-After") != "" {
				t.Error("non-retryable error carries Retry-After")
			}
		})
	}
}

func TestWriteRetryableError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRetryableError(w, http.StatusTooManyRequests, "rate limit exceeded", 42*time.Second)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}
	resp := decodeEnvelope(t, w)
	if resp.Success || resp.RetryAfter != 42 {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestWriteRetryableErrorFloorsAtOneSecond(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRetryableError(w, http.StatusServiceUnavailable, "backing off", 200*time.Millisecond)

	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	if resp := decodeEnvelope(t, w); resp.RetryAfter != 1 {
		t.Errorf("retry_after_seconds = %d, want 1", resp.RetryAfter)
	}
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "invalid parameter")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w, "server error")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMethodNotAllowed(w, "POST required")

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, nil)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS origin header")
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Error("expected CORS methods header")
	}
	if w.Header().Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Error("expected CORS headers header")
	}
}
