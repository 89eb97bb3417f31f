// Package config loads the chronos YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chronos/core"
	"chronos/firmware"
	"chronos/host/serial"
)

// Config is the top-level configuration file.
type Config struct {
	Timer     core.TimerConfig `yaml:"timer"`
	Watchdog  bool             `yaml:"watchdog"`
	Heartbeat HeartbeatConfig  `yaml:"heartbeat"`
	Serial    serial.Config    `yaml:"serial"`
	Sim       SimConfig        `yaml:"sim"`
}

// HeartbeatConfig configures the status link producer.
type HeartbeatConfig struct {
	Enabled   bool   `yaml:"enabled"`
	QueueSize int    `yaml:"queue_size"`
	FlushMS   uint16 `yaml:"flush_ms"`
}

// SimConfig configures the simulated device.
type SimConfig struct {
	ResolutionMS int     `yaml:"resolution_ms"`
	Speed        float64 `yaml:"speed"`
}

var (
	ErrInvalidDivider   = errors.New("divider must be 1, 2, 4 or 8")
	ErrFrequencyTooLow  = errors.New("timer frequency below 1000 Hz")
	ErrPeriodTooShort   = errors.New("period must be at least 2 ticks")
	ErrInvalidSubscribe = errors.New("max_subscribers must not be negative")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Timer:     core.DefaultTimerConfig(),
		Heartbeat: HeartbeatConfig{Enabled: true, QueueSize: 256, FlushMS: firmware.DefaultPollMS},
		Serial:    *serial.DefaultConfig("/dev/ttyACM0"),
		Sim:       SimConfig{ResolutionMS: 1, Speed: 1},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// The period follows the parsed clock unless the file sets it.
	cfg.Timer.Period = 0
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in values left zero by the file
func applyDefaults(cfg *Config) {
	if cfg.Timer.SourceHz == 0 {
		cfg.Timer.SourceHz = core.DefaultSourceHz
	}
	if cfg.Timer.Divider == 0 {
		cfg.Timer.Divider = core.DefaultDivider
	}
	if cfg.Timer.Period == 0 {
		cfg.Timer.Period = cfg.Timer.Frequency()
	}
	cfg.Timer.Mode = core.ModeContinuous

	if cfg.Heartbeat.QueueSize == 0 {
		cfg.Heartbeat.QueueSize = 256
	}
	if cfg.Heartbeat.FlushMS == 0 {
		cfg.Heartbeat.FlushMS = firmware.DefaultPollMS
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = serial.DefaultBaud
	}
	if cfg.Sim.ResolutionMS <= 0 {
		cfg.Sim.ResolutionMS = 1
	}
	if cfg.Sim.Speed <= 0 {
		cfg.Sim.Speed = 1
	}
}

// Validate checks the timer line settings.
func (c *Config) Validate() error {
	switch c.Timer.Divider {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("timer: %w (got %d)", ErrInvalidDivider, c.Timer.Divider)
	}
	if c.Timer.Frequency() < 1000 {
		return fmt.Errorf("timer: %w (got %d)", ErrFrequencyTooLow, c.Timer.Frequency())
	}
	if c.Timer.Period < 2 {
		return fmt.Errorf("timer: %w (got %d)", ErrPeriodTooShort, c.Timer.Period)
	}
	if c.Timer.MaxSubscribers < 0 {
		return fmt.Errorf("timer: %w", ErrInvalidSubscribe)
	}
	return nil
}

// Firmware returns the device loop settings.
func (c *Config) Firmware() firmware.Config {
	return firmware.Config{
		Timer:     c.Timer,
		Heartbeat: c.Heartbeat.Enabled,
		QueueSize: c.Heartbeat.QueueSize,
		PollMS:    c.Heartbeat.FlushMS,
	}
}
