package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendcore_test")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.RepaymentEditWindow)
	assert.Equal(t, 60*time.Minute, cfg.OverdueCheckInterval)
	assert.Equal(t, "dev-secret-change-in-production", cfg.JWTSecret)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendcore_test")
	t.Setenv("TX_MAX_RETRIES", "5")
	t.Setenv("REPAYMENT_EDIT_WINDOW_HOURS", "2")
	t.Setenv("OVERDUE_CHECK_INTERVAL_MINUTES", "15")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TxMaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.RepaymentEditWindow)
	assert.Equal(t, 15*time.Minute, cfg.OverdueCheckInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.EqualError(t, err, "DATABASE_URL is required")
}

func TestLoad_RequiresJWTSecretInProduction(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendcore_test")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.EqualError(t, err, "JWT_SECRET is required in production")
}

func TestLoad_RejectsNegativeRetries(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendcore_test")
	t.Setenv("TX_MAX_RETRIES", "-1")

	_, err := Load()
	assert.Error(t, err)
}
