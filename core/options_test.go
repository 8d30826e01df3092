package core

import (
	"context"
	"testing"
)

func TestCfgxConfigProviderMergesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"max_attempts": 7,
		"breaker": map[string]any{
			"threshold": 3,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxAttempts != 7 {
		t.Fatalf("expected loaded max_attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.Breaker.Threshold != 3 {
		t.Fatalf("expected loaded breaker threshold, got %d", cfg.Breaker.Threshold)
	}
	if cfg.ServiceName != "webhook-intake" {
		t.Fatalf("expected default service_name preserved, got %q", cfg.ServiceName)
	}
	if cfg.Backoff.InitialDelayMs != 1000 {
		t.Fatalf("expected default backoff preserved, got %d", cfg.Backoff.InitialDelayMs)
	}
}

func TestCfgxConfigProviderRejectsInvalidValues(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"max_attempts": -1,
	}})

	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatal("expected invalid loaded config rejected")
	}
}

func TestCfgxConfigProviderNilLoaderReturnsDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(nil)

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults unchanged, got %+v", cfg)
	}
}

func TestGoOptionsResolverPrecedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ServiceName: "from-config", MaxAttempts: 7}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", resolved.ServiceName)
	}
	if resolved.MaxAttempts != 7 {
		t.Fatalf("expected config layer max_attempts, got %d", resolved.MaxAttempts)
	}
	if resolved.Breaker.Threshold != defaults.Breaker.Threshold {
		t.Fatalf("expected default breaker threshold, got %d", resolved.Breaker.Threshold)
	}
	if resolved.Backoff.MaxDelayMs != defaults.Backoff.MaxDelayMs {
		t.Fatalf("expected default backoff max delay, got %d", resolved.Backoff.MaxDelayMs)
	}
}

func TestGoOptionsResolverZeroRuntimeFallsBack(t *testing.T) {
	resolved, err := GoOptionsResolver{}.Resolve(DefaultConfig(), Config{}, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != DefaultConfig() {
		t.Fatalf("expected defaults when nothing is layered, got %+v", resolved)
	}
}

func TestGoOptionsResolverValidatesMergedConfig(t *testing.T) {
	loaded := Config{Backoff: BackoffConfig{BackoffMultiplier: 0.5}}

	if _, err := (GoOptionsResolver{}).Resolve(DefaultConfig(), loaded, Config{}); err == nil {
		t.Fatal("expected merged config validation failure")
	}
}
