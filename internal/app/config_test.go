package app

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 100.0, cfg.LowStockThreshold)
	require.Equal(t, 100.0, cfg.DefaultMinStock)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	require.Equal(t, 168*time.Hour, cfg.IdempotencyRetention)
	require.Equal(t, 5*time.Minute, cfg.DashboardCacheTTL)
	require.False(t, cfg.AllowNegativeStock)
	require.Empty(t, cfg.APITokenHash)
	require.Equal(t, time.UTC, cfg.Location())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("APP_ADDR", ":9090")
	t.Cleanup(func() {
		_ = os.Unsetenv("LOW_STOCK_THRESHOLD")
		_ = os.Unsetenv("ALLOW_NEGATIVE_STOCK")
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOW_STOCK_THRESHOLD=2.5\nAPP_ADDR=:7070\nALLOW_NEGATIVE_STOCK=true\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.LowStockThreshold)
	require.True(t, cfg.AllowNegativeStock)
	require.Equal(t, ":9090", cfg.AppAddr, "environment wins over .env")
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "TIMEZONE")

	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOW_STOCK_THRESHOLD", "-1")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LOW_STOCK_THRESHOLD")

	t.Setenv("LOW_STOCK_THRESHOLD", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LOW_STOCK_THRESHOLD")
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("sku", "GIN"))
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"sku":"GIN"`)

	require.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	require.Equal(t, slog.LevelInfo, parseLevel(nil))
}
