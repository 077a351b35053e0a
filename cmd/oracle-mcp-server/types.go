// cmd/oracle-mcp-server/types.go
package main

// ===== Tool input / output types =====

type PreviewQueryInput struct {
	SQL string `json:"sql" jsonschema:"SELECT or WITH statement to validate without executing"`
}

type PreviewQueryOutput struct {
	Admitted      bool     `json:"admitted" jsonschema:"true if the statement passed validation"`
	Reason        string   `json:"reason,omitempty" jsonschema:"rejection reason when not admitted"`
	Warnings      []string `json:"warnings" jsonschema:"non-fatal findings about the statement"`
	Complexity    int      `json:"complexity" jsonschema:"computed complexity score"`
	AppliedRowCap int      `json:"applied_row_cap,omitempty" jsonschema:"row cap that will be enforced on execution"`
	EffectiveSQL  string   `json:"effective_sql,omitempty" jsonschema:"statement as it will actually run, including the row cap"`
	ApprovalToken string   `json:"approval_token,omitempty" jsonschema:"one-shot token to pass to query_oracle; present only when admitted"`
	ExpiresAt     string   `json:"expires_at,omitempty" jsonschema:"RFC3339 expiry of the approval token"`
}

type QueryOracleInput struct {
	SQL           string `json:"sql" jsonschema:"the same statement that was previewed (formatting may differ)"`
	ApprovalToken string `json:"approval_token" jsonschema:"token returned by preview_query"`
}

type QueryResult struct {
	Columns    []string                 `json:"columns" jsonschema:"column names"`
	Rows       []map[string]interface{} `json:"rows" jsonschema:"rows as column name to value maps"`
	RowCount   int                      `json:"row_count" jsonschema:"number of rows returned"`
	Complexity int                      `json:"complexity" jsonschema:"complexity score of the executed statement"`
	Warnings   []string                 `json:"warnings" jsonschema:"non-fatal findings about the statement"`
	DurationMs int64                    `json:"duration_ms" jsonschema:"database execution time in milliseconds"`
}

type DescribeTableInput struct {
	Table  string `json:"table" jsonschema:"table name; a bare Oracle identifier, case-insensitive"`
	Schema string `json:"schema,omitempty" jsonschema:"optional owner schema; defaults to the connected user's objects"`
}

type ColumnInfo struct {
	Name       string      `json:"name" jsonschema:"column name"`
	DataType   string      `json:"data_type" jsonschema:"Oracle data type"`
	Length     interface{} `json:"length,omitempty" jsonschema:"data length, if applicable"`
	Precision  interface{} `json:"precision,omitempty" jsonschema:"numeric precision, if applicable"`
	Scale      interface{} `json:"scale,omitempty" jsonschema:"numeric scale, if applicable"`
	Nullable   bool        `json:"nullable" jsonschema:"true if the column accepts NULL"`
	Default    interface{} `json:"default,omitempty" jsonschema:"column default expression, if any"`
	PrimaryKey bool        `json:"primary_key,omitempty" jsonschema:"true if the column is part of the primary key"`
}

type DescribeTableOutput struct {
	Table   string       `json:"table" jsonschema:"resolved table name"`
	Schema  string       `json:"schema,omitempty" jsonschema:"resolved owner schema when one was requested"`
	Columns []ColumnInfo `json:"columns" jsonschema:"column metadata in dictionary order"`
}

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"optional owner schema; defaults to the connected user's objects"`
}

type ListTablesOutput struct {
	Tables []string `json:"tables" jsonschema:"tables owned by the connected user or the requested schema"`
	Schema string   `json:"schema,omitempty" jsonschema:"resolved owner schema when one was requested"`
	Count  int      `json:"count" jsonschema:"number of tables"`
}

type PingInput struct{}

type PingOutput struct {
	Success   bool   `json:"success" jsonschema:"true if the database round-trip succeeded"`
	LatencyMs int64  `json:"latency_ms" jsonschema:"round-trip latency in milliseconds"`
	Message   string `json:"message" jsonschema:"status message"`
}

type GatewayStatusInput struct{}

type CircuitStatus struct {
	State               string `json:"state" jsonschema:"CLOSED, OPEN, or HALF_OPEN"`
	ConsecutiveFailures int    `json:"consecutive_failures" jsonschema:"failures counted toward opening the circuit"`
	ProbeSuccesses      int    `json:"probe_successes" jsonschema:"successes counted toward closing the circuit"`
	RetryAfterSeconds   int    `json:"retry_after_seconds,omitempty" jsonschema:"seconds until the next probe, when open"`
}

type PoolStatus struct {
	Total      int  `json:"total" jsonschema:"configured session count"`
	Healthy    int  `json:"healthy" jsonschema:"sessions currently usable"`
	Unhealthy  int  `json:"unhealthy" jsonschema:"sessions under repair"`
	AllHealthy bool `json:"all_healthy" jsonschema:"true if every session is usable"`
}

type RateLimitStatus struct {
	Used          int `json:"used" jsonschema:"requests consumed in the current window"`
	Max           int `json:"max" jsonschema:"window capacity"`
	WindowSeconds int `json:"window_seconds" jsonschema:"window length in seconds"`
}

type GatewayStatusOutput struct {
	Pool             PoolStatus      `json:"pool" jsonschema:"session pool health"`
	Circuit          CircuitStatus   `json:"circuit" jsonschema:"circuit breaker state"`
	PendingApprovals int             `json:"pending_approvals" jsonschema:"unexpired approval tokens not yet consumed"`
	RateLimit        RateLimitStatus `json:"rate_limit" jsonschema:"shared rate limiter usage"`
}
