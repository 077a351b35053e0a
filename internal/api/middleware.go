// internal/api/middleware.go
package api

import (
	"context"
	"net/http"
	"time"
)

// WithCORS wraps a handler to add CORS headers and handle OPTIONS preflight.
func WithCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			WriteJSON(w, http.StatusOK, nil)
			return
		}

		next(w, r)
	}
}

// RequireMethod wraps a handler to require a specific HTTP method.
func RequireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			WriteJSON(w, http.StatusOK, nil)
			return
		}

		if r.Method != method {
			WriteMethodNotAllowed(w, method+" method required")
			return
		}

		next(w, r)
	}
}

// RequireGET wraps a handler to require GET (or HEAD) method.
func RequireGET(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			WriteJSON(w, http.StatusOK, nil)
			return
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			WriteMethodNotAllowed(w, "GET method required")
			return
		}

		next(w, r)
	}
}

// RequirePOST wraps a handler to require POST method.
func RequirePOST(next http.HandlerFunc) http.HandlerFunc {
	return RequireMethod(http.MethodPost, next)
}

// WithTimeout returns middleware that bounds the request context. The
// request's own context stays the parent so client disconnects still cancel.
func WithTimeout(timeout time.Duration) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireQueryParam returns middleware that checks a required query parameter is present.
func RequireQueryParam(paramName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "OPTIONS" {
				WriteJSON(w, http.StatusOK, nil)
				return
			}

			if r.URL.Query().Get(paramName) == "" {
				WriteBadRequest(w, paramName+" parameter is required")
				return
			}

			next(w, r)
		}
	}
}

// Chain chains multiple middleware functions together.
func Chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
