// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	DBPath        string

	// Engine is the on-device inference engine the solver talks to.
	Engine EngineConfig
}

// EngineConfig controls the connection to the local inference engine and the
// model artifact it serves.
type EngineConfig struct {
	Addr           string
	ModelName      string
	ModelDir       string
	MaxTokens      int
	SupportsImages bool

	// SessionCreateTimeout bounds how long session creation may take before
	// failing fast. Accumulated engine-side sessions are known to slow
	// creation down severely, hence the generous ceiling.
	SessionCreateTimeout time.Duration

	// SolveTimeout bounds one full solving pipeline (prompt + streaming).
	SolveTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
		DBPath:        getEnv("DB_PATH", "./data/solvd.db"),
		Engine: EngineConfig{
			Addr:                 getEnv("ENGINE_ADDR", "http://localhost:11434"),
			ModelName:            getEnv("ENGINE_MODEL", "qwen2.5-math"),
			ModelDir:             getEnv("ENGINE_MODEL_DIR", "./models"),
			MaxTokens:            getEnvInt("ENGINE_MAX_TOKENS", 4096),
			SupportsImages:       getEnvBool("ENGINE_SUPPORTS_IMAGES", true),
			SessionCreateTimeout: getEnvDuration("ENGINE_SESSION_CREATE_TIMEOUT", 60*time.Second),
			SolveTimeout:         getEnvDuration("ENGINE_SOLVE_TIMEOUT", 10*time.Minute),
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Engine.Addr == "" {
		return fmt.Errorf("ENGINE_ADDR cannot be empty")
	}
	if c.Engine.ModelName == "" {
		return fmt.Errorf("ENGINE_MODEL cannot be empty")
	}
	if c.Engine.MaxTokens <= 0 {
		return fmt.Errorf("ENGINE_MAX_TOKENS must be > 0")
	}
	if c.Engine.SessionCreateTimeout <= 0 {
		return fmt.Errorf("ENGINE_SESSION_CREATE_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AllowedOrigin == "" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
