package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
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

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
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
		loader = staticRawConfigLoader{}
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

// GoOptionsResolver merges defaults, loaded config, and runtime overrides
// in ascending precedence before validating the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
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
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.MaxAttempts > 0 {
		layer["max_attempts"] = cfg.MaxAttempts
	}
	if includeZero || cfg.DispatchTimeoutMs > 0 {
		layer["dispatch_timeout_ms"] = cfg.DispatchTimeoutMs
	}
	backoff := map[string]any{}
	if includeZero || cfg.Backoff.InitialDelayMs > 0 {
		backoff["initial_delay_ms"] = cfg.Backoff.InitialDelayMs
	}
	if includeZero || cfg.Backoff.MaxDelayMs > 0 {
		backoff["max_delay_ms"] = cfg.Backoff.MaxDelayMs
	}
	if includeZero || cfg.Backoff.BackoffMultiplier > 0 {
		backoff["backoff_multiplier"] = cfg.Backoff.BackoffMultiplier
	}
	if includeZero || cfg.Backoff.JitterMaxMs > 0 {
		backoff["jitter_max_ms"] = cfg.Backoff.JitterMaxMs
	}
	if len(backoff) > 0 {
		layer["backoff"] = backoff
	}
	breakerLayer := map[string]any{}
	if includeZero || cfg.Breaker.Threshold > 0 {
		breakerLayer["threshold"] = cfg.Breaker.Threshold
	}
	if includeZero || cfg.Breaker.TimeoutMs > 0 {
		breakerLayer["timeout_ms"] = cfg.Breaker.TimeoutMs
	}
	if len(breakerLayer) > 0 {
		layer["breaker"] = breakerLayer
	}
	poll := map[string]any{}
	if includeZero || cfg.RetryPoll.IntervalMs > 0 {
		poll["interval_ms"] = cfg.RetryPoll.IntervalMs
	}
	if includeZero || cfg.RetryPoll.BatchSize > 0 {
		poll["batch_size"] = cfg.RetryPoll.BatchSize
	}
	if len(poll) > 0 {
		layer["retry_poll"] = poll
	}
	sla := map[string]any{}
	if includeZero || cfg.SLA.SuccessRateThresholdPct > 0 {
		sla["success_rate_threshold_pct"] = cfg.SLA.SuccessRateThresholdPct
	}
	if includeZero || cfg.SLA.ResponseTimeThresholdMs > 0 {
		sla["response_time_threshold_ms"] = cfg.SLA.ResponseTimeThresholdMs
	}
	if includeZero || cfg.SLA.MonitoringWindowMinutes > 0 {
		sla["monitoring_window_minutes"] = cfg.SLA.MonitoringWindowMinutes
	}
	if includeZero || cfg.SLA.EvaluateIntervalMs > 0 {
		sla["evaluate_interval_ms"] = cfg.SLA.EvaluateIntervalMs
	}
	if len(sla) > 0 {
		layer["sla"] = sla
	}
	return layer
}

// ResolveLogger applies the deterministic provider > logger > nop
// precedence used across the module.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	return glog.Resolve(name, provider, logger)
}
