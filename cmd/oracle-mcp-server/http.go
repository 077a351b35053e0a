// cmd/oracle-mcp-server/http.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdba/oracle-mcp-server/internal/api"
)

const maxJSONRequestBodyBytes int64 = 1 << 20 // 1 MiB

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONRequestBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Reject trailing data (helps avoid JSON request smuggling / ambiguity)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("request body must contain a single JSON object")
		}
		return err
	}

	return nil
}

// ===== HTTP Handlers =====

// httpPreviewQuery handles POST /api/preview with JSON body {"sql": "..."}
func httpPreviewQuery(w http.ResponseWriter, r *http.Request) {
	var input PreviewQueryInput
	if err := decodeJSONBody(w, r, &input); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if input.SQL == "" {
		api.WriteBadRequest(w, "sql field is required")
		return
	}
	_, out, err := toolPreviewQueryWrapped(r.Context(), nil, input)
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpRunQuery handles POST /api/query with JSON body {"sql": "...", "approval_token": "..."}
func httpRunQuery(w http.ResponseWriter, r *http.Request) {
	var input QueryOracleInput
	if err := decodeJSONBody(w, r, &input); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if input.SQL == "" {
		api.WriteBadRequest(w, "sql field is required")
		return
	}
	_, out, err := toolQueryOracleWrapped(r.Context(), nil, input)
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpListTables handles GET /api/tables with optional ?schema=xxx
func httpListTables(w http.ResponseWriter, r *http.Request) {
	input := ListTablesInput{Schema: r.URL.Query().Get("schema")}
	_, out, err := toolListTablesWrapped(r.Context(), nil, input)
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpDescribeTable handles GET /api/table?table=xxx with optional ?schema=xxx
func httpDescribeTable(w http.ResponseWriter, r *http.Request) {
	input := DescribeTableInput{
		Table:  r.URL.Query().Get("table"),
		Schema: r.URL.Query().Get("schema"),
	}
	_, out, err := toolDescribeTableWrapped(r.Context(), nil, input)
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpPing handles GET /api/ping
func httpPing(w http.ResponseWriter, r *http.Request) {
	_, out, err := toolPingWrapped(r.Context(), nil, PingInput{})
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpStatus handles GET /api/status
func httpStatus(w http.ResponseWriter, r *http.Request) {
	_, out, err := toolGatewayStatusWrapped(r.Context(), nil, GatewayStatusInput{})
	if err != nil {
		api.WriteGatewayError(w, err)
		return
	}
	api.WriteSuccess(w, out)
}

// httpHealth handles GET /health
func httpHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, map[string]interface{}{
		"status":  "healthy",
		"service": "oracle-mcp-server",
		"version": Version,
	})
}

// httpAPIIndex handles GET /api
func httpAPIIndex(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, map[string]interface{}{
		"service": "oracle-mcp-server REST API",
		"version": Version,
		"endpoints": map[string]string{
			"GET  /health":      "Health check",
			"GET  /api":         "API index (this page)",
			"POST /api/preview": "Validate a query and obtain an approval token (body: {sql})",
			"POST /api/query":   "Execute an approved query (body: {sql, approval_token})",
			"GET  /api/tables":  "List tables (optional ?schema=)",
			"GET  /api/table":   "Describe a table (requires ?table=, optional ?schema=)",
			"GET  /api/ping":    "Ping database",
			"GET  /api/status":  "Gateway status (pool, circuit, rate limit, approvals)",
		},
	})
}

// ===== HTTP Server Setup =====

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog logs each request using the application's structured logging.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logInfo("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// startHTTPServer starts the REST API server with graceful shutdown support.
func startHTTPServer(port int) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", api.WithCORS(httpHealth))
	mux.HandleFunc("/api", api.WithCORS(httpAPIIndex))
	mux.HandleFunc("/api/", api.WithCORS(httpAPIIndex))

	bounded := api.WithTimeout(cfg.HTTPRequestTimeout)

	mux.HandleFunc("/api/preview", api.Chain(httpPreviewQuery, api.WithCORS, api.RequirePOST, bounded))
	mux.HandleFunc("/api/query", api.Chain(httpRunQuery, api.WithCORS, api.RequirePOST, bounded))
	mux.HandleFunc("/api/tables", api.Chain(httpListTables, api.WithCORS, api.RequireGET, bounded))
	mux.HandleFunc("/api/table", api.Chain(httpDescribeTable, api.WithCORS, api.RequireGET, api.RequireQueryParam("table"), bounded))
	mux.HandleFunc("/api/ping", api.Chain(httpPing, api.WithCORS, api.RequireGET, bounded))
	mux.HandleFunc("/api/status", api.Chain(httpStatus, api.WithCORS, api.RequireGET, bounded))

	addr := fmt.Sprintf(":%d", port)

	server := &http.Server{
		Addr:         addr,
		Handler:      withRequestLog(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.HTTPRequestTimeout + 5*time.Second, // slightly longer than the handler timeout
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logInfo("HTTP REST API server starting", map[string]interface{}{
			"port":    port,
			"address": "http://localhost" + addr,
			"version": Version,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-stop
	logInfo("shutdown signal received, stopping server", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	} else {
		logInfo("server stopped gracefully", nil)
	}
}
