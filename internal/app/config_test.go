package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10, cfg.InvoiceMaxAttempts)
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.Equal(t, int64(10), cfg.LowStockThreshold)
	assert.True(t, cfg.DBAutoMigrate)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")
	t.Setenv("INVOICE_MAX_ATTEMPTS", "3")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("LOW_STOCK_THRESHOLD", "25")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.InvoiceMaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, int64(25), cfg.LowStockThreshold)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := LoadConfig()
		require.Error(t, err)
	})
	t.Run("short secret in production", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "short")
		t.Setenv("APP_ENV", "production")
		_, err := LoadConfig()
		require.Error(t, err)
	})
	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "unit-test-secret")
		t.Setenv("INVOICE_MAX_ATTEMPTS", "0")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
