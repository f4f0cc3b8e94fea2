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

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.RateLimitRPS)
	assert.False(t, cfg.Server.AutoConnect)
	assert.Equal(t, "http://localhost:8000", cfg.Upstream.URL)
	assert.Equal(t, "ws://localhost:8000/api/v1/reactor/ws/status", cfg.Upstream.StreamURL)
	assert.Zero(t, cfg.Upstream.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 3*time.Second, cfg.Poll.EmptyRetry)
	assert.Equal(t, 5*time.Second, cfg.Poll.ErrorRetry)
	assert.False(t, cfg.Forecast.Enabled)
	assert.Equal(t, 800.0, cfg.Forecast.RadiusKm)
	assert.Equal(t, 2000.0, cfg.Telemetry.CoreTempCritical)
	assert.Equal(t, 30, cfg.Telemetry.WindowSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("UPSTREAM_URL", "https://hazards.example.org/")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("PREDICTION_ENABLED", "true")
	t.Setenv("FORECAST_RADIUS_KM", "250.5")
	t.Setenv("TELEMETRY_WINDOW", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://hazards.example.org", cfg.Upstream.URL)
	assert.Equal(t, "wss://hazards.example.org/api/v1/reactor/ws/status", cfg.Upstream.StreamURL)
	assert.Equal(t, 2*time.Minute, cfg.Poll.Interval)
	assert.True(t, cfg.Forecast.Enabled)
	assert.Equal(t, 250.5, cfg.Forecast.RadiusKm)
	assert.Equal(t, 10, cfg.Telemetry.WindowSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"http stream url", "STREAM_URL", "http://localhost:8000/ws"},
		{"negative empty retry", "POLL_EMPTY_RETRY", "-1s"},
		{"zero radius", "FORECAST_RADIUS_KM", "0"},
		{"latitude out of range", "DEFAULT_LAT", "91"},
		{"empty window", "TELEMETRY_WINDOW", "0"},
		{"no workers", "WORKER_COUNT", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
