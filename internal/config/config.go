// Package config provides configuration loading using koanf.
// Precedence: environment variables, then compiled defaults.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/kuo-hm/devdeck-backends/internal/domain"
)

// Config holds the configuration shared by every server binary.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Port is the raw PORT override, empty when unset. Services that honor
	// it decode it with PortOr; the rest never look at it.
	Port string `koanf:"port"`

	Log     LogConfig     `koanf:"log"`
	OTEL    OTELConfig    `koanf:"otel"`
	Service ServiceConfig `koanf:"service"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "text" or "json"
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint string `koanf:"endpoint"` // Empty disables OTLP export
}

// ServiceConfig holds build metadata reported in telemetry.
type ServiceConfig struct {
	Version string `koanf:"version"`
}

// envKeys lists the environment variables Load reads. Anything else in the
// process environment is ignored.
var envKeys = map[string]string{
	"PORT":            "port",
	"ENVIRONMENT":     "environment",
	"LOG_LEVEL":       "log.level",
	"LOG_FORMAT":      "log.format",
	"OTEL_ENDPOINT":   "otel.endpoint",
	"SERVICE_VERSION": "service.version",
}

func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Service: ServiceConfig{
			Version: "0.1.0",
		},
	}
}

// Load reads the environment once and returns an immutable Config.
// Empty variables count as unset, so PORT="" falls back to the service default.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		mapped, ok := envKeys[key]
		if !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return mapped, strings.TrimSpace(value)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", domain.ErrInvalidConfig, cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", domain.ErrInvalidConfig, cfg.Log.Format)
	}

	return nil
}

// PortOr returns the PORT override when one was given, otherwise def.
// A PORT that is not an integer in MinPort..MaxPort is an error.
func (c *Config) PortOr(def int) (int, error) {
	if c.Port == "" {
		return def, nil
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return 0, fmt.Errorf("%w: PORT=%q", domain.ErrInvalidConfig, c.Port)
	}
	if !domain.ValidPort(port) {
		return 0, fmt.Errorf("%w: PORT=%d", domain.ErrInvalidPort, port)
	}
	return port, nil
}
