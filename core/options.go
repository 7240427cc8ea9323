package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticConfigLoader serves a fixed raw map, typically decoded from a file
// or environment by the host application.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig loads file/env values through provider and layers runtime
// overrides on top with resolver. Nil collaborators fall back to the cfgx
// provider with no raw values and the go-options resolver.
func LoadConfig(
	ctx context.Context,
	provider ConfigProvider,
	resolver OptionsResolver,
	runtime Config,
) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	circuit := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Circuit.Preset) != "" {
		circuit["preset"] = cfg.Circuit.Preset
	}
	if defaults := circuitSettingsLayer(cfg.Circuit.Defaults, includeZero); len(defaults) > 0 {
		circuit["defaults"] = defaults
	}
	if len(cfg.Circuit.Services) > 0 {
		services := make(map[string]any, len(cfg.Circuit.Services))
		for name, settings := range cfg.Circuit.Services {
			services[strings.TrimSpace(strings.ToLower(name))] = circuitSettingsLayer(settings, false)
		}
		circuit["services"] = services
	}
	if len(circuit) > 0 {
		layer["circuit"] = circuit
	}

	transport := map[string]any{}
	putInt64(transport, "timeout_ms", cfg.Transport.TimeoutMs, includeZero)
	putInt(transport, "max_retries", cfg.Transport.MaxRetries, includeZero)
	putInt64(transport, "backoff_initial_ms", cfg.Transport.BackoffInitialMs, includeZero)
	putInt64(transport, "backoff_max_ms", cfg.Transport.BackoffMaxMs, includeZero)
	putString(transport, "user_agent", cfg.Transport.UserAgent, includeZero)
	putInt64(transport, "max_response_body_bytes", cfg.Transport.MaxResponseBodyBytes, includeZero)
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	queue := map[string]any{}
	putInt(queue, "batch_size", cfg.Queue.BatchSize, includeZero)
	putInt64(queue, "tick_interval_ms", cfg.Queue.TickIntervalMs, includeZero)
	putInt(queue, "max_size", cfg.Queue.MaxSize, includeZero)
	putString(queue, "overflow_policy", cfg.Queue.OverflowPolicy, includeZero)
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	stats := map[string]any{}
	putInt64(stats, "flush_interval_ms", cfg.Stats.FlushIntervalMs, includeZero)
	if len(stats) > 0 {
		layer["stats"] = stats
	}
	return layer
}

func circuitSettingsLayer(settings CircuitSettings, includeZero bool) map[string]any {
	out := map[string]any{}
	putInt(out, "failure_threshold", settings.FailureThreshold, includeZero)
	putInt(out, "success_threshold", settings.SuccessThreshold, includeZero)
	putInt64(out, "open_timeout_ms", settings.OpenTimeoutMs, includeZero)
	return out
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putInt64(layer map[string]any, key string, value int64, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}
