// Package config provides configuration for the PO chat client and the
// development stub backend.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// Backend
	AgentBaseURL string

	// Timeouts
	ChatTimeout   time.Duration
	LookupTimeout time.Duration

	// Master-data search
	SearchLimit int

	// Stub backend
	StubHTTPPort    int
	StubDatabaseURL string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		AgentBaseURL:    getEnv("AGENT_BASE_URL", "http://localhost:8000"),
		ChatTimeout:     time.Duration(getEnvInt("CHAT_TIMEOUT_MS", 300000)) * time.Millisecond,
		LookupTimeout:   time.Duration(getEnvInt("LOOKUP_TIMEOUT_MS", 10000)) * time.Millisecond,
		SearchLimit:     getEnvInt("MASTER_SEARCH_LIMIT", 10),
		StubHTTPPort:    getEnvInt("STUB_HTTP_PORT", 8000),
		StubDatabaseURL: getEnv("STUB_DATABASE_URL", "file:stubagent.db?cache=shared&mode=rwc"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
