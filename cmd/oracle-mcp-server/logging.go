// cmd/oracle-mcp-server/logging.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// ===== Structured Logging =====

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func logJSON(level, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
	if jsonLogging {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if len(fields) > 0 {
			log.Printf("[%s] %s %v", level, message, fields)
		} else {
			log.Printf("[%s] %s", level, message)
		}
	}
}

func logInfo(message string, fields map[string]interface{}) {
	logJSON("INFO", message, fields)
}

func logWarn(message string, fields map[string]interface{}) {
	logJSON("WARN", message, fields)
}

func logError(message string, fields map[string]interface{}) {
	logJSON("ERROR", message, fields)
}

// ===== Query Timing Helper =====

// QueryTimer tracks query execution time and provides logging helpers.
type QueryTimer struct {
	start time.Time
	tool  string
}

// NewQueryTimer creates a new query timer for the given tool.
func NewQueryTimer(tool string) *QueryTimer {
	return &QueryTimer{start: time.Now(), tool: tool}
}

// Elapsed returns the time elapsed since the timer was created.
func (t *QueryTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMs returns the elapsed time in milliseconds.
func (t *QueryTimer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}

// LogSuccess logs a successful query execution.
func (t *QueryTimer) LogSuccess(rowCount int, query string, tokens *TokenUsage) {
	fields := map[string]interface{}{
		"tool":        t.tool,
		"duration_ms": t.ElapsedMs(),
		"row_count":   rowCount,
	}
	if query != "" && len(query) <= 200 {
		fields["query"] = query
	}
	if tokens != nil && tokenTracking {
		fields["tokens"] = map[string]interface{}{
			"input_estimated":  tokens.InputEstimated,
			"output_estimated": tokens.OutputEstimated,
			"total_estimated":  tokens.TotalEstimated,
			"model":            tokens.Model,
		}
	}
	logInfo("query executed", fields)
}

// LogError logs a failed query execution.
func (t *QueryTimer) LogError(err error, query string, tokens *TokenUsage) {
	fields := map[string]interface{}{
		"tool":        t.tool,
		"duration_ms": t.ElapsedMs(),
		"error":       err.Error(),
	}
	if query != "" && len(query) <= 200 {
		fields["query"] = query
	}
	if tokens != nil && tokenTracking {
		fields["tokens"] = map[string]interface{}{
			"input_estimated":  tokens.InputEstimated,
			"output_estimated": tokens.OutputEstimated,
			"total_estimated":  tokens.TotalEstimated,
			"model":            tokens.Model,
		}
	}
	logError("query failed", fields)
}
