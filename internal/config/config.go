/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL when behind a reverse proxy (e.g., http://tv.example.com)
	DataDir     string

	DBBackend DatabaseBackend
	DBDSN     string

	// DataEncryptionKey protects stored Upstream access tokens. When empty a
	// key is derived from machine identity; tokens then do not survive a move
	// to different hardware.
	DataEncryptionKey string

	// APIKey gates the management API and WebSocket when non-empty.
	APIKey string

	// AllowPrivateURLs permits Upstream base URLs that resolve to private or
	// loopback addresses. Defaults to true: the usual deployment is a LAN
	// media server.
	AllowPrivateURLs bool

	ScheduleBlockHours   int
	ScheduleDayStartHour int

	// Redis output cache (optional; in-memory fallback when unset/unreachable)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"PREVUE_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:    getEnvAny([]string{"PREVUE_HTTP_BIND", "HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"PREVUE_PORT", "PORT"}, 3080),
		BaseURL:     getEnvAny([]string{"PREVUE_BASE_URL", "BASE_URL"}, ""),
		DataDir:     getEnvAny([]string{"PREVUE_DATA_DIR", "DATA_DIR"}, "./data"),

		DBBackend: DatabaseBackend(getEnvAny([]string{"PREVUE_DB_BACKEND", "DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"PREVUE_DB_DSN", "DB_DSN"}, ""),

		DataEncryptionKey: getEnvAny([]string{"DATA_ENCRYPTION_KEY"}, ""),
		APIKey:            getEnvAny([]string{"PREVUE_API_KEY"}, ""),
		AllowPrivateURLs:  getEnvBoolAny([]string{"PREVUE_ALLOW_PRIVATE_URLS"}, true),

		ScheduleBlockHours:   getEnvIntAny([]string{"SCHEDULE_BLOCK_HOURS"}, 24),
		ScheduleDayStartHour: getEnvIntAny([]string{"SCHEDULE_DAY_START_HOUR"}, 4),

		RedisAddr:     getEnvAny([]string{"PREVUE_REDIS_ADDR", "REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"PREVUE_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"PREVUE_REDIS_DB", "REDIS_DB"}, 0),

		TracingEnabled:    getEnvBoolAny([]string{"PREVUE_TRACING_ENABLED", "OTEL_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"PREVUE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"PREVUE_TRACING_SAMPLE_RATE", "OTEL_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("PREVUE_DB_DSN must be provided for backend %q", cfg.DBBackend)
		}
		cfg.DBDSN = filepath.Join(cfg.DataDir, "prevue.db")
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("PORT %d out of range", cfg.HTTPPort)
	}

	if key := cfg.DataEncryptionKey; key != "" && len(key) < 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be at least 32 characters, got %d", len(key))
	}

	if cfg.ScheduleBlockHours < 1 || cfg.ScheduleBlockHours > 168 {
		return nil, fmt.Errorf("SCHEDULE_BLOCK_HOURS %d out of range (1-168)", cfg.ScheduleBlockHours)
	}

	if cfg.ScheduleDayStartHour < 0 || cfg.ScheduleDayStartHour > 23 {
		return nil, fmt.Errorf("SCHEDULE_DAY_START_HOUR %d out of range (0-23)", cfg.ScheduleDayStartHour)
	}

	return cfg, nil
}

// ListenAddr returns the bind address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" || v == "on" {
				return true
			}
			if v == "false" || v == "0" || v == "no" || v == "off" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
