package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Feed.Interval)
	assert.Equal(t, 0.03, cfg.Feed.StockVolatility)
	assert.Equal(t, 0.005, cfg.Feed.FXVolatility)
	assert.Equal(t, "USD", cfg.Feed.ReferenceCurrency)
	assert.Len(t, cfg.Feed.Quotes, 8)
	assert.Len(t, cfg.Feed.Rates, 3)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := `
logger:
  level: debug
  format: json
server:
  port: 9090
feed:
  interval: 500ms
  quotes:
    AAPL: 100
  rates:
    USD: 1
    EUR: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, 100.0, cfg.Feed.Quotes["aapl"])
	assert.Equal(t, 0.005, cfg.Feed.FXVolatility)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("LOGGER_LEVEL", "warn")

	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("server: [unclosed"), 0o600))

	_, err := LoadConfig(dir)

	assert.Error(t, err)
}
