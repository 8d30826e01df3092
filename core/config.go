package core

import (
	"fmt"
	"strings"
	"time"
)

type BackoffConfig struct {
	InitialDelayMs    int     `koanf:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	MaxDelayMs        int     `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `koanf:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterMaxMs       int     `koanf:"jitter_max_ms" mapstructure:"jitter_max_ms"`
}

type BreakerConfig struct {
	Threshold int `koanf:"threshold" mapstructure:"threshold"`
	TimeoutMs int `koanf:"timeout_ms" mapstructure:"timeout_ms"`
}

type RetryPollConfig struct {
	IntervalMs int `koanf:"interval_ms" mapstructure:"interval_ms"`
	BatchSize  int `koanf:"batch_size" mapstructure:"batch_size"`
}

type SLADefaultsConfig struct {
	SuccessRateThresholdPct float64 `koanf:"success_rate_threshold_pct" mapstructure:"success_rate_threshold_pct"`
	ResponseTimeThresholdMs int     `koanf:"response_time_threshold_ms" mapstructure:"response_time_threshold_ms"`
	MonitoringWindowMinutes int     `koanf:"monitoring_window_minutes" mapstructure:"monitoring_window_minutes"`
	EvaluateIntervalMs      int     `koanf:"evaluate_interval_ms" mapstructure:"evaluate_interval_ms"`
}

type Config struct {
	ServiceName       string            `koanf:"service_name" mapstructure:"service_name"`
	MaxAttempts       int               `koanf:"max_attempts" mapstructure:"max_attempts"`
	DispatchTimeoutMs int               `koanf:"dispatch_timeout_ms" mapstructure:"dispatch_timeout_ms"`
	Backoff           BackoffConfig     `koanf:"backoff" mapstructure:"backoff"`
	Breaker           BreakerConfig     `koanf:"breaker" mapstructure:"breaker"`
	RetryPoll         RetryPollConfig   `koanf:"retry_poll" mapstructure:"retry_poll"`
	SLA               SLADefaultsConfig `koanf:"sla" mapstructure:"sla"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "webhook-intake",
		MaxAttempts:       10,
		DispatchTimeoutMs: 30_000,
		Backoff: BackoffConfig{
			InitialDelayMs:    1000,
			MaxDelayMs:        900_000,
			BackoffMultiplier: 2,
			JitterMaxMs:       1000,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			TimeoutMs: 60_000,
		},
		RetryPoll: RetryPollConfig{
			IntervalMs: 5000,
			BatchSize:  10,
		},
		SLA: SLADefaultsConfig{
			SuccessRateThresholdPct: 95,
			ResponseTimeThresholdMs: 2000,
			MonitoringWindowMinutes: 60,
			EvaluateIntervalMs:      60_000,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("core: max_attempts must be positive")
	}
	if c.Backoff.InitialDelayMs <= 0 {
		return fmt.Errorf("core: backoff initial_delay_ms must be positive")
	}
	if c.Backoff.MaxDelayMs < c.Backoff.InitialDelayMs {
		return fmt.Errorf("core: backoff max_delay_ms must be >= initial_delay_ms")
	}
	if c.Backoff.BackoffMultiplier < 1 {
		return fmt.Errorf("core: backoff multiplier must be >= 1")
	}
	if c.Backoff.JitterMaxMs < 0 {
		return fmt.Errorf("core: backoff jitter_max_ms must not be negative")
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("core: breaker threshold must be positive")
	}
	if c.Breaker.TimeoutMs <= 0 {
		return fmt.Errorf("core: breaker timeout_ms must be positive")
	}
	if c.RetryPoll.BatchSize <= 0 {
		return fmt.Errorf("core: retry poll batch_size must be positive")
	}
	return nil
}

func (c Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMs) * time.Millisecond
}

func (c Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Breaker.TimeoutMs) * time.Millisecond
}

func (c Config) RetryPollInterval() time.Duration {
	return time.Duration(c.RetryPoll.IntervalMs) * time.Millisecond
}

func (c Config) SLAWindow() time.Duration {
	return time.Duration(c.SLA.MonitoringWindowMinutes) * time.Minute
}
