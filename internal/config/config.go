// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for everything tunable.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 1521
	DefaultService = "ORCLPDB1"

	DefaultMaxComplexity = 50
	DefaultMaxRows       = 10000

	DefaultRateMax           = 60
	DefaultRateWindowSecs    = 60
	DefaultApprovalTTLSecs   = 300
	DefaultPoolSize          = 2
	DefaultAcquireTimeoutSec = 30
	DefaultQueryTimeoutSecs  = 5
	DefaultFetchChunk        = 1000

	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeoutSecs = 60
	DefaultSuccessThreshold    = 2

	DefaultHTTPPort            = 8080
	DefaultHTTPRequestTimeoutS = 30
)

// Config is the complete runtime configuration. Credentials come exclusively
// from the ORACLE_USER / ORACLE_PASSWORD environment variables; they never
// appear in config files or on the command line.
type Config struct {
	Host     string
	Port     int
	Service  string
	User     string
	Password string

	MaxComplexity   int
	MaxRows         int
	AllowCrossJoins bool

	RateMax    int
	RateWindow time.Duration

	ApprovalTTL time.Duration

	PoolSize       int
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
	FetchChunk     int

	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int

	JSONLogging   bool
	AuditLogPath  string
	TokenTracking bool
	TokenModel    string

	HTTPMode           bool
	HTTPPort           int
	HTTPRequestTimeout time.Duration
}

// Defaults returns a Config with every knob at its default and no
// credentials.
func Defaults() *Config {
	return &Config{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Service: DefaultService,

		MaxComplexity: DefaultMaxComplexity,
		MaxRows:       DefaultMaxRows,

		RateMax:     DefaultRateMax,
		RateWindow:  DefaultRateWindowSecs * time.Second,
		ApprovalTTL: DefaultApprovalTTLSecs * time.Second,

		PoolSize:       DefaultPoolSize,
		AcquireTimeout: DefaultAcquireTimeoutSec * time.Second,
		QueryTimeout:   DefaultQueryTimeoutSecs * time.Second,
		FetchChunk:     DefaultFetchChunk,

		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeoutSecs * time.Second,
		SuccessThreshold: DefaultSuccessThreshold,

		TokenModel: "cl100k_base",

		HTTPPort:           DefaultHTTPPort,
		HTTPRequestTimeout: DefaultHTTPRequestTimeoutS * time.Second,
	}
}

// Load builds the runtime configuration: defaults, then an optional config
// file, then environment variables on top. Missing credentials are an error.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := FindConfigFile(); path != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg)
	}

	cfg.applyEnv()

	if cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("ORACLE_USER and ORACLE_PASSWORD env vars are required")
	}
	if cfg.Service == "" {
		return nil, fmt.Errorf("ORACLE_SERVICE must not be empty")
	}
	return cfg, nil
}

// applyEnv overrides cfg from the ORACLE_* environment.
func (c *Config) applyEnv() {
	readString("ORACLE_HOST", &c.Host)
	readInt("ORACLE_PORT", &c.Port)
	readString("ORACLE_SERVICE", &c.Service)
	readString("ORACLE_USER", &c.User)
	readString("ORACLE_PASSWORD", &c.Password)

	readInt("ORACLE_MAX_COMPLEXITY", &c.MaxComplexity)
	readInt("ORACLE_MAX_ROWS", &c.MaxRows)
	readBool("ORACLE_ALLOW_CROSS_JOINS", &c.AllowCrossJoins)

	readInt("ORACLE_RATE_MAX", &c.RateMax)
	readSeconds("ORACLE_RATE_WINDOW_SECONDS", &c.RateWindow)
	readSeconds("ORACLE_APPROVAL_TTL_SECONDS", &c.ApprovalTTL)

	readInt("ORACLE_POOL_SIZE", &c.PoolSize)
	readSeconds("ORACLE_ACQUIRE_TIMEOUT_SECONDS", &c.AcquireTimeout)
	readSeconds("ORACLE_QUERY_TIMEOUT_SECONDS", &c.QueryTimeout)
	readInt("ORACLE_FETCH_CHUNK", &c.FetchChunk)

	readInt("ORACLE_FAILURE_THRESHOLD", &c.FailureThreshold)
	readSeconds("ORACLE_RECOVERY_TIMEOUT_SECONDS", &c.RecoveryTimeout)
	readInt("ORACLE_SUCCESS_THRESHOLD", &c.SuccessThreshold)

	readBool("ORACLE_MCP_LOG_JSON", &c.JSONLogging)
	readString("ORACLE_MCP_AUDIT_LOG", &c.AuditLogPath)
	readBool("ORACLE_MCP_TOKEN_TRACKING", &c.TokenTracking)
	readString("ORACLE_MCP_TOKEN_MODEL", &c.TokenModel)

	readBool("ORACLE_MCP_HTTP", &c.HTTPMode)
	readInt("ORACLE_MCP_HTTP_PORT", &c.HTTPPort)
}

func readString(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func readInt(env string, dst *int) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func readSeconds(env string, dst *time.Duration) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func readBool(env string, dst *bool) {
	v := strings.ToLower(os.Getenv(env))
	switch v {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}
