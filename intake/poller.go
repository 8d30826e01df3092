package intake

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-intake/core"
)

// RetryPoller drives ProcessDue on a fixed interval. It is the only
// component that wakes up on its own; everything else reacts to calls.
type RetryPoller struct {
	Service   core.IntakeService
	Interval  time.Duration
	BatchSize int
	Logger    core.Logger
	Metrics   core.MetricsRecorder
}

func NewRetryPoller(service core.IntakeService, interval time.Duration, batchSize int) *RetryPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	_, logger := core.ResolveLogger("intake-poller", nil, nil)
	return &RetryPoller{
		Service:   service,
		Interval:  interval,
		BatchSize: batchSize,
		Logger:    logger,
		Metrics:   core.NopMetricsRecorder{},
	}
}

// Run polls until the context ends. Per-tick failures are logged; the
// loop never stops on its own.
func (p *RetryPoller) Run(ctx context.Context) error {
	if p == nil || p.Service == nil {
		return intakeInternal("intake: poller service is not configured", nil)
	}

	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs a single poll cycle.
func (p *RetryPoller) Tick(ctx context.Context) {
	if p == nil || p.Service == nil {
		return
	}
	stats, err := p.Service.ProcessDue(ctx, p.batchSize())
	if err != nil {
		p.logger().Error("retry poll failed", "error", err.Error())
		p.metrics().IncCounter(ctx, "intake.poll.failures", 1, nil)
		return
	}
	if stats.Claimed == 0 {
		return
	}
	p.metrics().IncCounter(ctx, "intake.poll.claimed", int64(stats.Claimed), nil)
	p.logger().Debug("retry poll completed",
		"claimed", stats.Claimed,
		"succeeded", stats.Succeeded,
		"rescheduled", stats.Rescheduled,
		"dead_lettered", stats.DeadLettered,
		"frozen", stats.Frozen,
	)
}

func (p *RetryPoller) interval() time.Duration {
	if p != nil && p.Interval > 0 {
		return p.Interval
	}
	return 5 * time.Second
}

func (p *RetryPoller) batchSize() int {
	if p != nil && p.BatchSize > 0 {
		return p.BatchSize
	}
	return 10
}

func (p *RetryPoller) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}

func (p *RetryPoller) metrics() core.MetricsRecorder {
	if p != nil && p.Metrics != nil {
		return p.Metrics
	}
	return core.NopMetricsRecorder{}
}
