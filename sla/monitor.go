package sla

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-intake/core"
)

// Monitor derives per-provider compliance reports from the delivery
// attempt history. Reports are computed on demand over the trailing
// window; nothing here is authoritative delivery state.
type Monitor struct {
	Store    core.DeliveryAttemptStore
	Reporter core.ViolationReporter
	Logger   core.Logger
	Metrics  core.MetricsRecorder
	Now      func() time.Time

	mu      sync.RWMutex
	configs map[string]core.SLAConfig
}

func NewMonitor(store core.DeliveryAttemptStore, reporter core.ViolationReporter) *Monitor {
	_, logger := core.ResolveLogger("sla", nil, nil)
	return &Monitor{
		Store:    store,
		Reporter: reporter,
		Logger:   logger,
		Metrics:  core.NopMetricsRecorder{},
		Now:      func() time.Time { return time.Now().UTC() },
		configs:  map[string]core.SLAConfig{},
	}
}

func (m *Monitor) SetConfig(cfg core.SLAConfig) error {
	if m == nil {
		return fmt.Errorf("sla: monitor is nil")
	}
	cfg.Provider = strings.TrimSpace(strings.ToLower(cfg.Provider))
	if cfg.Provider == "" {
		return fmt.Errorf("sla: provider is required")
	}
	if cfg.SuccessRateThresholdPct <= 0 || cfg.SuccessRateThresholdPct > 100 {
		return fmt.Errorf("sla: success rate threshold must be in (0, 100]")
	}
	if cfg.MonitoringWindow <= 0 {
		return fmt.Errorf("sla: monitoring window must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.Provider] = cfg
	return nil
}

// Evaluate reports compliance for one provider. A window with no
// deliveries is 100% compliant; silence is not a violation.
func (m *Monitor) Evaluate(ctx context.Context, cfg core.SLAConfig) (core.SLAStatus, error) {
	if m == nil || m.Store == nil {
		return core.SLAStatus{}, fmt.Errorf("sla: monitor store is not configured")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		return core.SLAStatus{}, fmt.Errorf("sla: provider is required")
	}
	window := cfg.MonitoringWindow
	if window <= 0 {
		window = time.Hour
	}

	now := m.now()
	since := now.Add(-window)
	attempts, err := m.Store.QueryByProviderAndWindow(ctx, provider, since)
	if err != nil {
		return core.SLAStatus{}, fmt.Errorf("sla: window query failed for provider %q: %w", provider, err)
	}

	status := core.SLAStatus{
		Provider:        provider,
		WindowStart:     since,
		EvaluatedAt:     now,
		TotalDeliveries: len(attempts),
	}

	var responseTotal int64
	var responseSamples int
	for _, attempt := range attempts {
		if attempt.Status == core.AttemptStatusSuccess {
			status.Successes++
		}
		if attempt.ResponseTimeMs > 0 {
			responseTotal += attempt.ResponseTimeMs
			responseSamples++
		}
	}

	if status.TotalDeliveries == 0 {
		status.SuccessRatePct = 100
		status.Compliant = true
		return status, nil
	}

	status.SuccessRatePct = float64(status.Successes) / float64(status.TotalDeliveries) * 100
	if responseSamples > 0 {
		status.AvgResponseTimeMs = float64(responseTotal) / float64(responseSamples)
	}

	status.Compliant = status.SuccessRatePct >= cfg.SuccessRateThresholdPct
	if cfg.ResponseTimeThresholdMs > 0 && status.AvgResponseTimeMs > float64(cfg.ResponseTimeThresholdMs) {
		status.Compliant = false
	}

	m.observe(ctx, status)
	if !status.Compliant {
		m.reportViolation(ctx, provider, status)
	}
	return status, nil
}

// EvaluateProvider evaluates one provider by name using its registered
// config. Providers without a registered config fall back to the default
// thresholds.
func (m *Monitor) EvaluateProvider(ctx context.Context, provider string) (core.SLAStatus, error) {
	if m == nil {
		return core.SLAStatus{}, fmt.Errorf("sla: monitor is nil")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return core.SLAStatus{}, fmt.Errorf("sla: provider is required")
	}

	m.mu.RLock()
	cfg, ok := m.configs[provider]
	m.mu.RUnlock()
	if !ok {
		defaults := core.DefaultConfig().SLA
		cfg = core.SLAConfig{
			Provider:                provider,
			SuccessRateThresholdPct: defaults.SuccessRateThresholdPct,
			ResponseTimeThresholdMs: int64(defaults.ResponseTimeThresholdMs),
			MonitoringWindow:        time.Duration(defaults.MonitoringWindowMinutes) * time.Minute,
		}
	}
	return m.Evaluate(ctx, cfg)
}

// EvaluateAll evaluates every registered provider config in provider order.
// A single provider failure does not stop the sweep.
func (m *Monitor) EvaluateAll(ctx context.Context) ([]core.SLAStatus, error) {
	if m == nil {
		return nil, fmt.Errorf("sla: monitor is nil")
	}

	m.mu.RLock()
	providers := make([]string, 0, len(m.configs))
	for provider := range m.configs {
		providers = append(providers, provider)
	}
	m.mu.RUnlock()
	sort.Strings(providers)

	statuses := make([]core.SLAStatus, 0, len(providers))
	var sweepErr error
	for _, provider := range providers {
		m.mu.RLock()
		cfg := m.configs[provider]
		m.mu.RUnlock()

		status, err := m.Evaluate(ctx, cfg)
		if err != nil {
			m.logger().Error("sla evaluation failed", "provider", provider, "error", err.Error())
			if sweepErr == nil {
				sweepErr = err
			}
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, sweepErr
}

// Run evaluates all registered providers on the given interval until the
// context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if m == nil {
		return fmt.Errorf("sla: monitor is nil")
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.EvaluateAll(ctx); err != nil {
				m.logger().Error("sla sweep failed", "error", err.Error())
			}
		}
	}
}

func (m *Monitor) reportViolation(ctx context.Context, provider string, status core.SLAStatus) {
	m.logger().Warn("sla violation detected",
		"provider", provider,
		"success_rate_pct", status.SuccessRatePct,
		"avg_response_time_ms", status.AvgResponseTimeMs,
		"total_deliveries", status.TotalDeliveries,
	)
	m.metrics().IncCounter(ctx, "intake.sla.violations", 1, map[string]string{"provider": provider})
	if m.Reporter == nil {
		return
	}
	if err := m.Reporter.ReportViolation(ctx, provider, status); err != nil {
		m.logger().Error("sla violation report failed", "provider", provider, "error", err.Error())
	}
}

func (m *Monitor) observe(ctx context.Context, status core.SLAStatus) {
	tags := map[string]string{"provider": status.Provider}
	m.metrics().ObserveHistogram(ctx, "intake.sla.success_rate_pct", status.SuccessRatePct, tags)
	if status.AvgResponseTimeMs > 0 {
		m.metrics().ObserveHistogram(ctx, "intake.sla.avg_response_time_ms", status.AvgResponseTimeMs, tags)
	}
}

func (m *Monitor) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Monitor) logger() core.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return glog.Nop()
}

func (m *Monitor) metrics() core.MetricsRecorder {
	if m != nil && m.Metrics != nil {
		return m.Metrics
	}
	return core.NopMetricsRecorder{}
}
