// internal/config/file.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Credentials are
// deliberately absent: user and password come only from the environment.
type FileConfig struct {
	Connection FileConnectionConfig `yaml:"connection" json:"connection"`
	Limits     FileLimitsConfig     `yaml:"limits" json:"limits"`
	RateLimit  FileRateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Approval   FileApprovalConfig   `yaml:"approval" json:"approval"`
	Pool       FilePoolConfig       `yaml:"pool" json:"pool"`
	Circuit    FileCircuitConfig    `yaml:"circuit" json:"circuit"`
	Logging    FileLoggingConfig    `yaml:"logging" json:"logging"`
	HTTP       FileHTTPConfig       `yaml:"http" json:"http"`
}

type FileConnectionConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Service string `yaml:"service" json:"service"`
}

type FileLimitsConfig struct {
	MaxComplexity   int  `yaml:"max_complexity" json:"max_complexity"`
	MaxRows         int  `yaml:"max_rows" json:"max_rows"`
	AllowCrossJoins bool `yaml:"allow_cross_joins" json:"allow_cross_joins"`
}

type FileRateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests" json:"max_requests"`
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

type FileApprovalConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" json:"ttl_seconds"`
}

type FilePoolConfig struct {
	Size                  int `yaml:"size" json:"size"`
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds" json:"acquire_timeout_seconds"`
	QueryTimeoutSeconds   int `yaml:"query_timeout_seconds" json:"query_timeout_seconds"`
	FetchChunk            int `yaml:"fetch_chunk" json:"fetch_chunk"`
}

type FileCircuitConfig struct {
	FailureThreshold       int `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds" json:"recovery_timeout_seconds"`
	SuccessThreshold       int `yaml:"success_threshold" json:"success_threshold"`
}

type FileLoggingConfig struct {
	JSONFormat    bool   `yaml:"json_format" json:"json_format"`
	AuditLogPath  string `yaml:"audit_log_path" json:"audit_log_path"`
	TokenTracking bool   `yaml:"token_tracking" json:"token_tracking"`
	TokenModel    string `yaml:"token_model" json:"token_model"`
}

type FileHTTPConfig struct {
	Enabled               bool `yaml:"enabled" json:"enabled"`
	Port                  int  `yaml:"port" json:"port"`
	RequestTimeoutSeconds int  `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
}

// FindConfigFile returns the first config file found: the ORACLE_MCP_CONFIG
// env var, then the working directory, the user config directory, and
// finally /etc.
func FindConfigFile() string {
	if envPath := os.Getenv("ORACLE_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"oracle-mcp-server.yaml",
		"oracle-mcp-server.yml",
		"oracle-mcp-server.json",
	}
	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		for _, ext := range []string{"yaml", "yml", "json"} {
			path := filepath.Join(homeDir, ".config", "oracle-mcp-server", "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	for _, ext := range []string{"yaml", "yml", "json"} {
		path := "/etc/oracle-mcp-server/config." + ext
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// LoadConfigFile parses a YAML or JSON config file by extension; unknown
// extensions try YAML first, then JSON.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		var yamlCfg FileConfig
		if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
			var jsonCfg FileConfig
			if err := json.Unmarshal(data, &jsonCfg); err != nil {
				return nil, fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
			}
			cfg = jsonCfg
		} else {
			cfg = yamlCfg
		}
	}

	return &cfg, nil
}

// apply overlays the set fields of the file config onto cfg. Zero values
// mean "not set" and leave the target alone; AllowCrossJoins and the
// boolean logging/HTTP toggles only ever turn features on, matching their
// defaults of off.
func (fc *FileConfig) apply(cfg *Config) {
	if fc.Connection.Host != "" {
		cfg.Host = fc.Connection.Host
	}
	if fc.Connection.Port > 0 {
		cfg.Port = fc.Connection.Port
	}
	if fc.Connection.Service != "" {
		cfg.Service = fc.Connection.Service
	}

	if fc.Limits.MaxComplexity > 0 {
		cfg.MaxComplexity = fc.Limits.MaxComplexity
	}
	if fc.Limits.MaxRows > 0 {
		cfg.MaxRows = fc.Limits.MaxRows
	}
	if fc.Limits.AllowCrossJoins {
		cfg.AllowCrossJoins = true
	}

	if fc.RateLimit.MaxRequests > 0 {
		cfg.RateMax = fc.RateLimit.MaxRequests
	}
	if fc.RateLimit.WindowSeconds > 0 {
		cfg.RateWindow = secondsToDuration(fc.RateLimit.WindowSeconds)
	}

	if fc.Approval.TTLSeconds > 0 {
		cfg.ApprovalTTL = secondsToDuration(fc.Approval.TTLSeconds)
	}

	if fc.Pool.Size > 0 {
		cfg.PoolSize = fc.Pool.Size
	}
	if fc.Pool.AcquireTimeoutSeconds > 0 {
		cfg.AcquireTimeout = secondsToDuration(fc.Pool.AcquireTimeoutSeconds)
	}
	if fc.Pool.QueryTimeoutSeconds > 0 {
		cfg.QueryTimeout = secondsToDuration(fc.Pool.QueryTimeoutSeconds)
	}
	if fc.Pool.FetchChunk > 0 {
		cfg.FetchChunk = fc.Pool.FetchChunk
	}

	if fc.Circuit.FailureThreshold > 0 {
		cfg.FailureThreshold = fc.Circuit.FailureThreshold
	}
	if fc.Circuit.RecoveryTimeoutSeconds > 0 {
		cfg.RecoveryTimeout = secondsToDuration(fc.Circuit.RecoveryTimeoutSeconds)
	}
	if fc.Circuit.SuccessThreshold > 0 {
		cfg.SuccessThreshold = fc.Circuit.SuccessThreshold
	}

	if fc.Logging.JSONFormat {
		cfg.JSONLogging = true
	}
	if fc.Logging.AuditLogPath != "" {
		cfg.AuditLogPath = fc.Logging.AuditLogPath
	}
	if fc.Logging.TokenTracking {
		cfg.TokenTracking = true
	}
	if v := strings.TrimSpace(fc.Logging.TokenModel); v != "" {
		cfg.TokenModel = v
	}

	if fc.HTTP.Enabled {
		cfg.HTTPMode = true
	}
	if fc.HTTP.Port > 0 {
		cfg.HTTPPort = fc.HTTP.Port
	}
	if fc.HTTP.RequestTimeoutSeconds > 0 {
		cfg.HTTPRequestTimeout = secondsToDuration(fc.HTTP.RequestTimeoutSeconds)
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
