package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL  string
	AutoMigrate  bool
	TxMaxRetries int

	// JWT
	JWTSecret          string
	JWTExpirationHours int
	RefreshTokenDays   int

	// Background Workers
	WorkerCount          int
	OverdueCheckInterval time.Duration

	// Repayments
	RepaymentEditWindow time.Duration

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		AutoMigrate:          getEnvAsBool("AUTO_MIGRATE", true),
		TxMaxRetries:         getEnvAsInt("TX_MAX_RETRIES", 3),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		JWTExpirationHours:   getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		RefreshTokenDays:     getEnvAsInt("REFRESH_TOKEN_DAYS", 30),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 5),
		OverdueCheckInterval: time.Duration(getEnvAsInt("OVERDUE_CHECK_INTERVAL_MINUTES", 60)) * time.Minute,
		RepaymentEditWindow:  time.Duration(getEnvAsInt("REPAYMENT_EDIT_WINDOW_HOURS", 24)) * time.Hour,
		AllowedOrigins:       getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:            getEnv("SENTRY_DSN", ""),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	if cfg.TxMaxRetries < 0 {
		return nil, fmt.Errorf("TX_MAX_RETRIES must not be negative")
	}

	if cfg.OverdueCheckInterval <= 0 {
		return nil, fmt.Errorf("OVERDUE_CHECK_INTERVAL_MINUTES must be positive")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
