package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Poll      PollConfig
	Forecast  ForecastConfig
	Telemetry TelemetryConfig
	Worker    WorkerConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
	AutoConnect  bool
}

type UpstreamConfig struct {
	URL       string
	StreamURL string
	Timeout   time.Duration // 0 leaves the transport default in place
}

type PollConfig struct {
	Interval   time.Duration
	EmptyRetry time.Duration
	ErrorRetry time.Duration
}

type ForecastConfig struct {
	Enabled    bool
	RadiusKm   float64
	DefaultLat float64
	DefaultLon float64
}

type TelemetryConfig struct {
	CoreTempCritical float64
	WindowSize       int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	upstreamURL := strings.TrimRight(getEnv("UPSTREAM_URL", "http://localhost:8000"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
			AutoConnect:  getEnvBool("AUTO_CONNECT", false),
		},
		Upstream: UpstreamConfig{
			URL:       upstreamURL,
			StreamURL: getEnv("STREAM_URL", deriveStreamURL(upstreamURL)),
			Timeout:   getEnvDuration("UPSTREAM_TIMEOUT", 0),
		},
		Poll: PollConfig{
			Interval:   getEnvDuration("POLL_INTERVAL", 60*time.Second),
			EmptyRetry: getEnvDuration("POLL_EMPTY_RETRY", 3*time.Second),
			ErrorRetry: getEnvDuration("POLL_ERROR_RETRY", 5*time.Second),
		},
		Forecast: ForecastConfig{
			Enabled:    getEnvBool("PREDICTION_ENABLED", false),
			RadiusKm:   getEnvFloat("FORECAST_RADIUS_KM", 800),
			DefaultLat: getEnvFloat("DEFAULT_LAT", 21.0285),
			DefaultLon: getEnvFloat("DEFAULT_LON", 105.8542),
		},
		Telemetry: TelemetryConfig{
			CoreTempCritical: getEnvFloat("CORE_TEMP_CRITICAL", 2000),
			WindowSize:       getEnvInt("TELEMETRY_WINDOW", 30),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if _, err := url.ParseRequestURI(c.Upstream.URL); err != nil {
		return fmt.Errorf("invalid upstream url %q: %w", c.Upstream.URL, err)
	}
	u, err := url.Parse(c.Upstream.StreamURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("stream url must use ws or wss: %q", c.Upstream.StreamURL)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream timeout cannot be negative")
	}

	if c.Poll.Interval <= 0 || c.Poll.EmptyRetry <= 0 || c.Poll.ErrorRetry <= 0 {
		return fmt.Errorf("poll delays must be positive")
	}

	if c.Forecast.RadiusKm <= 0 {
		return fmt.Errorf("forecast radius must be positive: %v", c.Forecast.RadiusKm)
	}
	if c.Forecast.DefaultLat < -90 || c.Forecast.DefaultLat > 90 {
		return fmt.Errorf("default latitude out of range: %v", c.Forecast.DefaultLat)
	}
	if c.Forecast.DefaultLon < -180 || c.Forecast.DefaultLon > 180 {
		return fmt.Errorf("default longitude out of range: %v", c.Forecast.DefaultLon)
	}

	if c.Telemetry.WindowSize < 1 {
		return fmt.Errorf("telemetry window must hold at least 1 sample")
	}

	if c.Worker.Count < 1 || c.Worker.BufferSize < 1 {
		return fmt.Errorf("worker count and buffer size must be positive")
	}

	return nil
}

// deriveStreamURL maps http(s)://host to ws(s)://host/api/v1/reactor/ws/status.
func deriveStreamURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/reactor/ws/status"
	return u.String()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
