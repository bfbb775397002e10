// Package config loads the YAML application configuration. Every field has a
// default so a missing or empty file yields a working setup pointed at a
// local backend.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DeviceConfig identifies the wearable and the timing of the link to it.
type DeviceConfig struct {
	Name               string        `yaml:"name" default:"CDTP-Watch"`
	ServiceUUID        string        `yaml:"service_uuid" default:"180d"`
	CharacteristicUUID string        `yaml:"characteristic_uuid" default:"2a37"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"30s"`
	SampleBufferSize   int           `yaml:"sample_buffer_size" default:"128"`
}

// IngestConfig points at the batch ingestion endpoint.
type IngestConfig struct {
	BaseURL      string        `yaml:"base_url" default:"http://localhost:8000"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
	BatchSize    int           `yaml:"batch_size" default:"5"`
	MaxAttempts  int           `yaml:"max_attempts" default:"1"`
	RetryBackoff time.Duration `yaml:"retry_backoff" default:"1s"`
}

// RealtimeConfig points at the websocket endpoint.
type RealtimeConfig struct {
	BaseURL          string        `yaml:"base_url" default:"ws://localhost:8000/ws"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"5s"`
}

// VitalsConfig carries the classification bands and activity parameters.
// Comfort is the NORMAL band; outside critical is CRITICAL; between is
// WARNING.
type VitalsConfig struct {
	ComfortLow             int     `yaml:"comfort_low" default:"60"`
	ComfortHigh            int     `yaml:"comfort_high" default:"100"`
	CriticalLow            int     `yaml:"critical_low" default:"50"`
	CriticalHigh           int     `yaml:"critical_high" default:"120"`
	InactivityLimitMinutes int     `yaml:"inactivity_limit_minutes" default:"60"`
	MovementThreshold      float64 `yaml:"movement_threshold" default:"1.5"`
}

// Config holds application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" default:"info"`
	Device   DeviceConfig   `yaml:"device"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Vitals   VitalsConfig   `yaml:"vitals"`
}

// Default returns the configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file, fills unset fields with defaults and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	defaults.SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce sensible behavior.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Device.Name == "" {
		return fmt.Errorf("device name must not be empty")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.Ingest.MaxAttempts)
	}
	if c.Vitals.ComfortLow >= c.Vitals.ComfortHigh {
		return fmt.Errorf("comfort band inverted: %d..%d", c.Vitals.ComfortLow, c.Vitals.ComfortHigh)
	}
	if c.Vitals.CriticalLow >= c.Vitals.CriticalHigh {
		return fmt.Errorf("critical band inverted: %d..%d", c.Vitals.CriticalLow, c.Vitals.CriticalHigh)
	}
	if c.Vitals.CriticalLow > c.Vitals.ComfortLow || c.Vitals.ComfortHigh > c.Vitals.CriticalHigh {
		return fmt.Errorf("comfort band %d..%d must sit inside critical band %d..%d",
			c.Vitals.ComfortLow, c.Vitals.ComfortHigh, c.Vitals.CriticalLow, c.Vitals.CriticalHigh)
	}
	if c.Vitals.InactivityLimitMinutes < 1 {
		return fmt.Errorf("inactivity limit must be at least 1 minute, got %d", c.Vitals.InactivityLimitMinutes)
	}
	if c.Vitals.MovementThreshold <= 0 {
		return fmt.Errorf("movement threshold must be positive, got %v", c.Vitals.MovementThreshold)
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
