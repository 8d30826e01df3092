package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-intake/core"
)

// Dispatcher verifies an event's signature, resolves its handler, and
// classifies the outcome. Signature failures and missing handlers are
// terminal; handler timeouts and unflagged handler errors are transient.
type Dispatcher struct {
	Registry *Registry
	Timeout  time.Duration
	Logger   core.Logger
	Metrics  core.MetricsRecorder
	Now      func() time.Time
}

func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	_, logger := core.ResolveLogger("dispatch", nil, nil)
	return &Dispatcher{
		Registry: registry,
		Timeout:  timeout,
		Logger:   logger,
		Metrics:  core.NopMetricsRecorder{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event core.InboundEvent) core.DispatchOutcome {
	if d == nil {
		return core.DispatchOutcome{Terminal: false, ErrorMessage: "dispatch: dispatcher is nil"}
	}
	started := d.now()

	if verifier, ok := d.registry().verifier(event.Provider); ok {
		if err := verifier.Verify(ctx, event); err != nil {
			outcome := core.DispatchOutcome{
				Terminal:     true,
				ErrorMessage: fmt.Sprintf("signature verification failed: %v", err),
				ResponseTime: d.since(started),
			}
			d.observe(ctx, event, outcome, "signature_invalid")
			return outcome
		}
	}

	handler, ok := d.registry().Resolve(event.Provider, event.EventKind)
	if !ok {
		outcome := core.DispatchOutcome{
			Terminal:     true,
			ErrorMessage: fmt.Sprintf("handler not registered for %s/%s", event.Provider, event.EventKind),
			ResponseTime: d.since(started),
		}
		d.observe(ctx, event, outcome, "handler_not_found")
		return outcome
	}

	handlerCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	err := handler.Handle(handlerCtx, event)
	elapsed := d.since(started)
	if err == nil {
		outcome := core.DispatchOutcome{Success: true, ResponseTime: elapsed}
		d.observe(ctx, event, outcome, "success")
		return outcome
	}

	outcome := core.DispatchOutcome{ResponseTime: elapsed}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome.ErrorMessage = fmt.Sprintf("handler timed out after %s", d.timeout())
		d.observe(ctx, event, outcome, "timeout")
	default:
		var handlerErr *core.HandlerError
		if errors.As(err, &handlerErr) && handlerErr.Terminal {
			outcome.Terminal = true
		}
		outcome.ErrorMessage = err.Error()
		reason := "handler_transient"
		if outcome.Terminal {
			reason = "handler_terminal"
		}
		d.observe(ctx, event, outcome, reason)
	}
	return outcome
}

func (d *Dispatcher) observe(ctx context.Context, event core.InboundEvent, outcome core.DispatchOutcome, reason string) {
	tags := map[string]string{
		"provider":   event.Provider,
		"event_kind": event.EventKind,
		"reason":     reason,
	}
	d.metrics().IncCounter(ctx, "intake.dispatch.total", 1, tags)
	d.metrics().ObserveHistogram(ctx, "intake.dispatch.duration_ms", float64(outcome.ResponseTime.Milliseconds()), tags)

	if outcome.Success {
		d.logger().Debug("dispatch completed",
			"provider", event.Provider,
			"event_kind", event.EventKind,
			"duration_ms", outcome.ResponseTime.Milliseconds(),
		)
		return
	}
	d.logger().Warn("dispatch failed",
		"provider", event.Provider,
		"event_kind", event.EventKind,
		"reason", reason,
		"terminal", outcome.Terminal,
		"error", outcome.ErrorMessage,
	)
}

func (d *Dispatcher) registry() *Registry {
	if d != nil && d.Registry != nil {
		return d.Registry
	}
	return NewRegistry()
}

func (d *Dispatcher) timeout() time.Duration {
	if d != nil && d.Timeout > 0 {
		return d.Timeout
	}
	return 30 * time.Second
}

func (d *Dispatcher) logger() core.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return glog.Nop()
}

func (d *Dispatcher) metrics() core.MetricsRecorder {
	if d != nil && d.Metrics != nil {
		return d.Metrics
	}
	return core.NopMetricsRecorder{}
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) since(started time.Time) time.Duration {
	elapsed := d.now().Sub(started)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

var _ core.Dispatcher = (*Dispatcher)(nil)
