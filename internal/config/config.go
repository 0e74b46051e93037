package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey    string
	GeminiModel     string
	DatabasePath    string
	CatalogPath     string // empty means the embedded catalog
	ScenarioTimeout time.Duration
	Seed            int64 // 0 seeds from the clock
	LogFile         string
	LogLevel        slog.Level
}

// HasGemini reports whether AI narration is configured.
func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

// LoadConfig loads the configuration from environment variables, reading a
// .env file first when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabasePath: getenv("B40_DATABASE_PATH", "b40.db"),
		CatalogPath:  os.Getenv("B40_CATALOG_PATH"),
		LogFile:      getenv("B40_LOG_FILE", "b40.log"),
	}

	timeout, err := time.ParseDuration(getenv("B40_SCENARIO_TIMEOUT", "8s"))
	if err != nil {
		return nil, fmt.Errorf("invalid B40_SCENARIO_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("B40_SCENARIO_TIMEOUT must be positive, got %s", timeout)
	}
	cfg.ScenarioTimeout = timeout

	if v := os.Getenv("B40_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid B40_SEED: %w", err)
		}
		cfg.Seed = seed
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("B40_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid B40_LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
