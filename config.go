package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/recorder"
	"github.com/scopeview/pkg/smooth"
	"github.com/scopeview/pkg/source"
	"github.com/scopeview/pkg/window"
)

// Config is the on-disk configuration. Command-line flags override it.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Source     source.Config     `yaml:"source"`
	Smoothing  SmoothingConfig   `yaml:"smoothing"`
	Recording  recorder.Settings `yaml:"recording"`
	Window     WindowConfig      `yaml:"window"`
	Logging    LoggingConfig     `yaml:"logging"`
	Prometheus PrometheusConfig  `yaml:"prometheus"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
	Simulator  SimulatorConfig   `yaml:"simulator"`
}

type ServerConfig struct {
	Listen           string `yaml:"listen"`
	RenderIntervalMS int    `yaml:"render_interval_ms"` // window broadcast period
	DefaultPoints    int    `yaml:"default_points"`     // samples per broadcast until a client asks otherwise
	AutoStart        bool   `yaml:"auto_start"`         // start acquisition as soon as the server is up
}

type SmoothingConfig struct {
	Enabled bool    `yaml:"enabled"`
	Factor  float64 `yaml:"factor"` // weight of the previous value, 0..1
}

type WindowConfig struct {
	Capacity int `yaml:"capacity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`   // optional, in addition to stderr
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic           string `yaml:"topic"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	PublishInterval int    `yaml:"publish_interval"` // seconds
}

type SimulatorConfig struct {
	Target       string  `yaml:"target"`        // UDP endpoint the generator sends to
	RateHz       int     `yaml:"rate_hz"`       // frames per second
	ToneHz       float64 `yaml:"tone_hz"`       // base tone, channel n runs at n times this
	CorruptEvery int     `yaml:"corrupt_every"` // flip a bit in every Nth frame, 0 disables
}

const defaultSmoothingFactor = 0.8

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{Smoothing: SmoothingConfig{Factor: defaultSmoothingFactor}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.RenderIntervalMS == 0 {
		c.Server.RenderIntervalMS = 30
	}
	if c.Window.Capacity == 0 {
		c.Window.Capacity = window.DefaultCapacity
	}
	if c.Server.DefaultPoints == 0 {
		c.Server.DefaultPoints = c.Window.Capacity
	}
	if c.Source.Serial != nil && c.Source.Serial.Baud == 0 {
		c.Source.Serial.Baud = source.DefaultBaud
	}
	if c.Recording.Format == "" {
		c.Recording.Format = recorder.FormatCSV
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "scopeview/window"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 5
	}
	if c.Simulator.Target == "" {
		c.Simulator.Target = "127.0.0.1:5005"
	}
	if c.Simulator.RateHz == 0 {
		c.Simulator.RateHz = 200
	}
	if c.Simulator.ToneHz == 0 {
		c.Simulator.ToneHz = 0.5
	}
}

// LoadConfig reads a YAML config file, fills defaults and validates it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Zero is a legal factor, so its default is set before decoding.
	config := &Config{Smoothing: SmoothingConfig{Factor: defaultSmoothingFactor}}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return config, nil
}

// Validate checks value ranges. An empty source section is allowed; the source can be
// chosen later through flags or the API.
func (c *Config) Validate() error {
	if c.Window.Capacity <= 0 {
		return fmt.Errorf("window.capacity must be positive, got %d", c.Window.Capacity)
	}
	if c.Server.RenderIntervalMS <= 0 {
		return fmt.Errorf("server.render_interval_ms must be positive, got %d", c.Server.RenderIntervalMS)
	}
	if c.Server.DefaultPoints <= 0 || c.Server.DefaultPoints > c.Window.Capacity {
		return fmt.Errorf("server.default_points must be within 1..%d, got %d", c.Window.Capacity, c.Server.DefaultPoints)
	}
	if c.Smoothing.Factor != smooth.Clamp(c.Smoothing.Factor) {
		return fmt.Errorf("smoothing.factor must be within 0..1, got %v", c.Smoothing.Factor)
	}
	if c.Source.Active() != "" || c.Source.Kind != "" {
		if err := c.Source.Normalize().Validate(); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	if _, err := recorder.ParseFormat(string(c.Recording.Format)); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if c.Recording.Enabled && c.Recording.Path == "" {
		return fmt.Errorf("recording: %w", recorder.ErrNoPath)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.PublishInterval <= 0 {
			return fmt.Errorf("mqtt.publish_interval must be positive, got %d", c.MQTT.PublishInterval)
		}
	}
	if c.Simulator.RateHz <= 0 {
		return fmt.Errorf("simulator.rate_hz must be positive, got %d", c.Simulator.RateHz)
	}
	return nil
}

// controls returns the loop controls described by the config.
func (c *Config) controls() acquire.Controls {
	return acquire.Controls{
		Smoothing: c.Smoothing.Enabled,
		Factor:    c.Smoothing.Factor,
		Recording: c.Recording,
	}
}
