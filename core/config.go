package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	CircuitPresetQuick        = "quick"
	CircuitPresetStandard     = "standard"
	CircuitPresetConservative = "conservative"

	OverflowDropOldest = "drop_oldest"
	OverflowRejectNew  = "reject_new"

	// RetriesDisabled as transport.max_retries runs every request exactly
	// once. Zero means unset and falls back to the default.
	RetriesDisabled = -1
)

type CircuitSettings struct {
	FailureThreshold int   `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int   `koanf:"success_threshold" mapstructure:"success_threshold"`
	OpenTimeoutMs    int64 `koanf:"open_timeout_ms" mapstructure:"open_timeout_ms"`
}

func (s CircuitSettings) OpenTimeout() time.Duration {
	return time.Duration(s.OpenTimeoutMs) * time.Millisecond
}

func (s CircuitSettings) validate(path string) error {
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("core: %s.failure_threshold must be positive", path)
	}
	if s.SuccessThreshold <= 0 {
		return fmt.Errorf("core: %s.success_threshold must be positive", path)
	}
	if s.OpenTimeoutMs <= 0 {
		return fmt.Errorf("core: %s.open_timeout_ms must be positive", path)
	}
	return nil
}

// overlay replaces zero fields of s with the matching fields of base.
func (s CircuitSettings) overlay(base CircuitSettings) CircuitSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = base.FailureThreshold
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = base.SuccessThreshold
	}
	if s.OpenTimeoutMs <= 0 {
		s.OpenTimeoutMs = base.OpenTimeoutMs
	}
	return s
}

var circuitPresets = map[string]CircuitSettings{
	CircuitPresetQuick:        {FailureThreshold: 3, SuccessThreshold: 1, OpenTimeoutMs: 10_000},
	CircuitPresetStandard:     {FailureThreshold: 5, SuccessThreshold: 2, OpenTimeoutMs: 30_000},
	CircuitPresetConservative: {FailureThreshold: 10, SuccessThreshold: 3, OpenTimeoutMs: 60_000},
}

func CircuitPreset(name string) (CircuitSettings, bool) {
	settings, ok := circuitPresets[strings.TrimSpace(strings.ToLower(name))]
	return settings, ok
}

type CircuitConfig struct {
	Preset   string                     `koanf:"preset" mapstructure:"preset"`
	Defaults CircuitSettings            `koanf:"defaults" mapstructure:"defaults"`
	Services map[string]CircuitSettings `koanf:"services" mapstructure:"services"`
}

// For resolves the settings for one downstream service: per-service override,
// then preset (when named), then defaults.
func (c CircuitConfig) For(service string) CircuitSettings {
	base := c.Defaults
	if preset, ok := CircuitPreset(c.Preset); ok {
		base = preset
	}
	override, ok := c.Services[strings.TrimSpace(strings.ToLower(service))]
	if !ok {
		return base
	}
	return override.overlay(base)
}

type TransportConfig struct {
	TimeoutMs            int64  `koanf:"timeout_ms" mapstructure:"timeout_ms"`
	MaxRetries           int    `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffInitialMs     int64  `koanf:"backoff_initial_ms" mapstructure:"backoff_initial_ms"`
	BackoffMaxMs         int64  `koanf:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	UserAgent            string `koanf:"user_agent" mapstructure:"user_agent"`
	MaxResponseBodyBytes int64  `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

// Retries resolves max_retries: unset (0) yields fallback, RetriesDisabled
// yields zero.
func (c TransportConfig) Retries(fallback int) int {
	switch {
	case c.MaxRetries == 0:
		return fallback
	case c.MaxRetries < 0:
		return 0
	default:
		return c.MaxRetries
	}
}

func (c TransportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c TransportConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

func (c TransportConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

type QueueConfig struct {
	BatchSize      int    `koanf:"batch_size" mapstructure:"batch_size"`
	TickIntervalMs int64  `koanf:"tick_interval_ms" mapstructure:"tick_interval_ms"`
	MaxSize        int    `koanf:"max_size" mapstructure:"max_size"`
	OverflowPolicy string `koanf:"overflow_policy" mapstructure:"overflow_policy"`
}

func (c QueueConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

type StatsConfig struct {
	FlushIntervalMs int64 `koanf:"flush_interval_ms" mapstructure:"flush_interval_ms"`
}

func (c StatsConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Circuit     CircuitConfig   `koanf:"circuit" mapstructure:"circuit"`
	Transport   TransportConfig `koanf:"transport" mapstructure:"transport"`
	Queue       QueueConfig     `koanf:"queue" mapstructure:"queue"`
	Stats       StatsConfig     `koanf:"stats" mapstructure:"stats"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Circuit: CircuitConfig{
			Defaults: CircuitSettings{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				OpenTimeoutMs:    60_000,
			},
		},
		Transport: TransportConfig{
			TimeoutMs:            30_000,
			MaxRetries:           3,
			BackoffInitialMs:     1_000,
			BackoffMaxMs:         10_000,
			UserAgent:            "go-integrations/1.0",
			MaxResponseBodyBytes: 1 << 20,
		},
		Queue: QueueConfig{
			BatchSize:      100,
			TickIntervalMs: 1_000,
			MaxSize:        10_000,
			OverflowPolicy: OverflowDropOldest,
		},
		Stats: StatsConfig{
			FlushIntervalMs: 5_000,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if preset := strings.TrimSpace(c.Circuit.Preset); preset != "" {
		if _, ok := CircuitPreset(preset); !ok {
			return fmt.Errorf("core: circuit.preset %q is not supported", preset)
		}
	} else if err := c.Circuit.Defaults.validate("circuit.defaults"); err != nil {
		return err
	}
	for name := range c.Circuit.Services {
		if err := c.Circuit.For(name).validate("circuit.services." + name); err != nil {
			return err
		}
	}
	if c.Transport.TimeoutMs <= 0 {
		return fmt.Errorf("core: transport.timeout_ms must be positive")
	}
	if c.Transport.MaxRetries < RetriesDisabled {
		return fmt.Errorf("core: transport.max_retries must be %d (disabled) or greater", RetriesDisabled)
	}
	if c.Transport.BackoffInitialMs <= 0 || c.Transport.BackoffMaxMs < c.Transport.BackoffInitialMs {
		return fmt.Errorf("core: transport backoff must satisfy 0 < backoff_initial_ms <= backoff_max_ms")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("core: queue.batch_size must be positive")
	}
	if c.Queue.TickIntervalMs <= 0 {
		return fmt.Errorf("core: queue.tick_interval_ms must be positive")
	}
	if c.Queue.MaxSize < 0 {
		return fmt.Errorf("core: queue.max_size must not be negative")
	}
	switch strings.TrimSpace(c.Queue.OverflowPolicy) {
	case OverflowDropOldest, OverflowRejectNew:
	default:
		return fmt.Errorf("core: queue.overflow_policy %q is not supported", c.Queue.OverflowPolicy)
	}
	if c.Stats.FlushIntervalMs <= 0 {
		return fmt.Errorf("core: stats.flush_interval_ms must be positive")
	}
	return nil
}
