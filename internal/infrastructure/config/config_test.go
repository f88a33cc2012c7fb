package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "invoo-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, 3, cfg.VeriFactu.MaxRetries)
	assert.Equal(t, time.Second, cfg.VeriFactu.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.VeriFactu.Timeout)
	assert.False(t, cfg.VeriFactu.IsProduction)

	assert.Equal(t, 10000, cfg.Safeguards.MaxDailyInvoices)
	assert.Equal(t, 1000, cfg.Safeguards.MaxHourlyInvoices)
	assert.Equal(t, 5, cfg.Safeguards.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Safeguards.RecoveryTimeout)
	assert.Equal(t, 5, cfg.Safeguards.CanaryPercentage)
	assert.Equal(t, 1000, cfg.Safeguards.SampleCapacity)

	assert.Equal(t, "10", cfg.Validation.TotalTolerance)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("INVOO_APP_PORT", "9090")
	t.Setenv("INVOO_VERIFACTU_API_KEY", "test-key-abc")
	t.Setenv("INVOO_SAFEGUARDS_MAX_DAILY_INVOICES", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "test-key-abc", cfg.VeriFactu.APIKey)
	assert.Equal(t, 42, cfg.Safeguards.MaxDailyInvoices)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("INVOO_APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifactu.api_key")

	t.Setenv("INVOO_VERIFACTU_API_KEY", "prod-key")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret")

	t.Setenv("INVOO_WEBHOOK_SECRET", "shared-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("INVOO_DATABASE_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "invoo",
		Password: "secret",
		DBName:   "invoicing",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=invoo password=secret dbname=invoicing sslmode=require",
		cfg.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}

	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}
