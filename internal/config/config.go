// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	StoreDriver   string
	DBPath        string
	QuestionsPath string // empty = embedded catalog
	Agent         AgentConfig
	History       HistoryConfig
	HTTP          HTTPConfig
	Session       SessionConfig
}

// AgentConfig controls the optional remote agent connection.
type AgentConfig struct {
	Addr           string // empty disables the agent
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// HistoryConfig controls history decryption.
type HistoryConfig struct {
	DecryptWorkers int
}

// HTTPConfig controls the HTTP surface.
type HTTPConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int
	HealthCheckTimeout time.Duration
	ShutdownTimeout    time.Duration
}

// SessionConfig controls live WebSocket sessions.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
		DBPath:        getEnv("DB_PATH", "./data/alexi.db"),
		QuestionsPath: getEnv("QUESTIONS_PATH", ""),
		Agent: AgentConfig{
			Addr:           getEnv("AGENT_ADDR", ""),
			ConnectTimeout: getEnvDuration("AGENT_CONNECT_TIMEOUT", 5*time.Second),
			RequestTimeout: getEnvDuration("AGENT_REQUEST_TIMEOUT", 30*time.Second),
		},
		History: HistoryConfig{
			DecryptWorkers: getEnvInt("HISTORY_DECRYPT_WORKERS", 4),
		},
		HTTP: HTTPConfig{
			AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 5),
			HealthCheckTimeout: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			IdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverSQLite, StoreDriverMemory, c.StoreDriver)
	}
	if c.History.DecryptWorkers <= 0 {
		return fmt.Errorf("HISTORY_DECRYPT_WORKERS must be > 0")
	}
	if c.HTTP.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	if c.Agent.Addr != "" && c.Agent.RequestTimeout <= 0 {
		return fmt.Errorf("AGENT_REQUEST_TIMEOUT must be > 0")
	}
	if c.Session.IdleTTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL and SESSION_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
