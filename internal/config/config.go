package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session persistence backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"IFTV Auth Console"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is either json or text.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	GatewayBaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"https://iftv-ott.onrender.com/iftv-ott"`
	GatewayRole          string        `env:"GATEWAY_ROLE" envDefault:"user"`
	GatewayDeviceToken   string        `env:"GATEWAY_DEVICE_TOKEN" envDefault:"adskfrghskjhdfghsj"`
	GatewayCurrentScreen string        `env:"GATEWAY_CURRENT_SCREEN" envDefault:"LANDING"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionSealKey string        `env:"SESSION_SEAL_KEY"`
	DeviceID       string        `env:"DEVICE_ID" envDefault:"default"`
	RedisURL       string        `env:"REDIS_URL"`
	DatabaseURL    string        `env:"DATABASE_URL"`

	ShutdownPeriod       time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL       time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`
	OTPRequestsPerMinute int           `env:"OTP_REQUESTS_PER_MINUTE" envDefault:"5"`
}

// Load reads configuration values from the environment and validates the
// combination of session backend and connection settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	cfg.GatewayBaseURL = strings.TrimRight(cfg.GatewayBaseURL, "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL must be set")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}

	switch c.SessionBackend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when SESSION_BACKEND=%s", c.SessionBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when SESSION_BACKEND=%s", c.SessionBackend)
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.SessionSealKey == "" {
		return fmt.Errorf("SESSION_SEAL_KEY must be set when SESSION_BACKEND=%s", c.SessionBackend)
	}
	if c.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID must not be empty")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// Persistent reports whether sessions survive a process restart.
func (c Config) Persistent() bool {
	return c.SessionBackend != BackendMemory
}
