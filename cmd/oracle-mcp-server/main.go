// cmd/oracle-mcp-server/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/askdba/oracle-mcp-server/internal/approval"
	"github.com/askdba/oracle-mcp-server/internal/audit"
	"github.com/askdba/oracle-mcp-server/internal/circuit"
	"github.com/askdba/oracle-mcp-server/internal/config"
	"github.com/askdba/oracle-mcp-server/internal/gateway"
	"github.com/askdba/oracle-mcp-server/internal/pool"
	"github.com/askdba/oracle-mcp-server/internal/ratelimit"
	"github.com/askdba/oracle-mcp-server/internal/util"
)

// Version is the server version reported over MCP and HTTP.
const Version = "0.1.0"

// Wiring shared by the MCP and HTTP front ends. Set once in main before any
// handler runs.
var (
	cfg *config.Config
	gw  *gateway.Dispatcher

	jsonLogging    bool
	tokenTracking  bool
	tokenModel     string
	tokenEstimator TokenEstimator
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	jsonLogging = cfg.JSONLogging
	tokenTracking = cfg.TokenTracking
	tokenModel = cfg.TokenModel
	if tokenTracking {
		tokenEstimator, err = NewTokenEstimator(tokenModel)
		if err != nil {
			logWarn("token tracking disabled", map[string]interface{}{"error": err.Error()})
			tokenTracking = false
		}
	}

	// ---- Init DB ----
	dsn := go_ora.BuildUrl(cfg.Host, cfg.Port, cfg.Service, cfg.User, cfg.Password, map[string]string{
		"PREFETCH_ROWS": strconv.Itoa(cfg.FetchChunk),
	})
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	// Dedicated sessions plus headroom for one repair probe.
	db.SetMaxOpenConns(cfg.PoolSize + 1)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("db init error: %v", err)
	}

	logInfo("connected to Oracle", map[string]interface{}{
		"dsn":       util.MaskDSN(dsn),
		"pool_size": cfg.PoolSize,
		"max_rows":  cfg.MaxRows,
	})

	// ---- Audit stream ----
	auditor, err := audit.NewFile(cfg.AuditLogPath, 64)
	if err != nil {
		log.Fatalf("audit log error: %v", err)
	}
	defer auditor.Close()

	// ---- Session pool ----
	sessions, err := pool.New(context.Background(), db, pool.Config{
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		QueryTimeout:   cfg.QueryTimeout,
	})
	if err != nil {
		log.Fatalf("pool init error: %v", err)
	}
	sessions.Logf = func(format string, args ...any) {
		logWarn(fmt.Sprintf(format, args...), nil)
	}
	defer sessions.Close()

	// ---- Gateway pipeline ----
	gw = gateway.New(
		util.NewValidator(cfg.MaxComplexity, cfg.MaxRows, cfg.AllowCrossJoins),
		ratelimit.New(cfg.RateMax, cfg.RateWindow),
		approval.New(cfg.ApprovalTTL),
		circuit.New(cfg.FailureThreshold, cfg.RecoveryTimeout, cfg.SuccessThreshold),
		sessions,
		auditor,
	)

	if cfg.HTTPMode {
		startHTTPServer(cfg.HTTPPort)
		return
	}

	// ---- Build MCP server ----
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "oracle-mcp-server",
			Version: Version,
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_query",
		Description: "Validate a read-only SQL query and obtain a one-shot approval token without executing it",
	}, toolPreviewQueryWrapped)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_oracle",
		Description: "Execute a previously approved read-only SQL query (requires the token from preview_query)",
	}, toolQueryOracleWrapped)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_table",
		Description: "Describe columns and primary key of a table, in the connected user's schema or a named one",
	}, toolDescribeTableWrapped)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tables",
		Description: "List tables owned by the connected user or by a named schema",
	}, toolListTablesWrapped)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Check database connectivity and measure round-trip latency",
	}, toolPingWrapped)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "gateway_status",
		Description: "Report session pool, circuit breaker, rate limiter, and approval registry state",
	}, toolGatewayStatusWrapped)

	// ---- Run over stdio ----
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal(err)
	}
}
