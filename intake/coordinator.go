package intake

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-intake/breaker"
	"github.com/goliatone/go-webhook-intake/core"
)

// Dependencies are the collaborators the coordinator drives. Store,
// Scheduler, Gate, Dispatcher, and Sink are required.
type Dependencies struct {
	Store       core.DeliveryAttemptStore
	Scheduler   core.RetryScheduler
	Gate        core.CircuitGate
	Dispatcher  core.Dispatcher
	Sink        core.DeadLetterSink
	DeadLetters core.DeadLetterStore
	Logger      core.Logger
	Metrics     core.MetricsRecorder
	MaxAttempts int
}

// Coordinator owns the delivery attempt lifecycle: gate check, first
// dispatch, retry scheduling, exhaustion, and dead lettering. It holds no
// state of its own; every transition is persisted through the store.
type Coordinator struct {
	store       core.DeliveryAttemptStore
	scheduler   core.RetryScheduler
	gate        core.CircuitGate
	dispatcher  core.Dispatcher
	sink        core.DeadLetterSink
	deadLetters core.DeadLetterStore
	logger      core.Logger
	metrics     core.MetricsRecorder
	maxAttempts int

	Now   func() time.Time
	NewID func() string
}

func NewCoordinator(deps Dependencies) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, intakeInternal("intake: delivery attempt store is required", nil)
	}
	if deps.Scheduler == nil {
		return nil, intakeInternal("intake: retry scheduler is required", nil)
	}
	if deps.Gate == nil {
		return nil, intakeInternal("intake: circuit gate is required", nil)
	}
	if deps.Dispatcher == nil {
		return nil, intakeInternal("intake: dispatcher is required", nil)
	}
	if deps.Sink == nil {
		return nil, intakeInternal("intake: dead letter sink is required", nil)
	}

	logger := deps.Logger
	if logger == nil {
		_, logger = core.ResolveLogger("intake", nil, nil)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Coordinator{
		store:       deps.Store,
		scheduler:   deps.Scheduler,
		gate:        deps.Gate,
		dispatcher:  deps.Dispatcher,
		sink:        deps.Sink,
		deadLetters: deps.DeadLetters,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       func() string { return uuid.NewString() },
	}, nil
}

// Submit gates, records, and synchronously processes the first attempt of
// an inbound event. The result only tells the sender accepted or rejected;
// processing outcome lives in the attempt record. A store failure does not
// reject the event: the lifecycle proceeds best effort and the record is
// flagged for reconciliation.
func (c *Coordinator) Submit(ctx context.Context, event core.InboundEvent) (core.IntakeResult, error) {
	if c == nil {
		return core.IntakeResult{}, intakeInternal("intake: coordinator is nil", nil)
	}
	event = normalizeEvent(event)
	if err := validateEvent(event); err != nil {
		return core.IntakeResult{StatusCode: http.StatusBadRequest}, err
	}

	key := core.NewBreakerKey(event.Provider, event.EventKind)
	if err := c.gate.Allow(ctx, key); err != nil {
		return c.rejectAtGate(ctx, key, err)
	}

	now := c.now()
	attempt := &core.DeliveryAttempt{
		ID:            c.newID(),
		Provider:      event.Provider,
		EventKind:     event.EventKind,
		Payload:       event.Payload,
		Signature:     event.Signature,
		AttemptNumber: 1,
		MaxAttempts:   c.maxAttempts,
		Status:        core.AttemptStatusProcessing,
		CreatedAt:     now,
	}
	if err := c.store.Create(ctx, attempt); err != nil {
		c.logger.Error("attempt create failed",
			"attempt_id", attempt.ID,
			"provider", event.Provider,
			"event_kind", event.EventKind,
			"needs_reconcile", true,
			"error", err.Error(),
		)
		c.metrics.IncCounter(ctx, "intake.persistence.failures", 1, map[string]string{"needs_reconcile": "true"})
	}

	c.metrics.IncCounter(ctx, "intake.submit.accepted", 1, map[string]string{
		"provider":   event.Provider,
		"event_kind": event.EventKind,
	})
	c.process(ctx, attempt, event)

	return core.IntakeResult{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		AttemptID:  attempt.ID,
	}, nil
}

// ProcessDue claims due retries and reprocesses them. Attempts rejected by
// the gate are rescheduled without consuming an attempt; persistence
// failures on one attempt never stop the batch.
func (c *Coordinator) ProcessDue(ctx context.Context, batchSize int) (core.RetryStats, error) {
	if c == nil {
		return core.RetryStats{}, intakeInternal("intake: coordinator is nil", nil)
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	items, err := c.scheduler.ClaimDue(ctx, batchSize)
	if err != nil {
		return core.RetryStats{}, intakePersistence(err, "intake: retry claim failed", nil)
	}

	stats := core.RetryStats{Claimed: len(items)}
	for _, item := range items {
		attempt, err := c.store.GetByID(ctx, item.AttemptID)
		if err != nil {
			c.logger.Error("retry attempt load failed", "attempt_id", item.AttemptID, "error", err.Error())
			c.metrics.IncCounter(ctx, "intake.retry.load_failures", 1, nil)
			continue
		}
		if attempt.Status.Terminal() {
			c.logger.Debug("skipping terminal attempt in retry queue",
				"attempt_id", attempt.ID,
				"status", string(attempt.Status),
			)
			continue
		}

		key := attempt.BreakerKey()
		if gateErr := c.gate.Allow(ctx, key); gateErr != nil {
			c.freeze(ctx, &attempt, gateErr)
			stats.Frozen++
			continue
		}

		event := eventFromAttempt(attempt)
		switch c.process(ctx, &attempt, event) {
		case core.AttemptStatusSuccess:
			stats.Succeeded++
		case core.AttemptStatusDeadLetter:
			stats.DeadLettered++
		default:
			stats.Rescheduled++
		}
	}
	return stats, nil
}

// ReplayDeadLetter re-submits a dead-lettered event as a brand new
// delivery. The original record is left untouched for audit.
func (c *Coordinator) ReplayDeadLetter(ctx context.Context, deadLetterID string) (core.IntakeResult, error) {
	if c == nil {
		return core.IntakeResult{}, intakeInternal("intake: coordinator is nil", nil)
	}
	if c.deadLetters == nil {
		return core.IntakeResult{}, intakeInternal("intake: dead letter store is not configured", nil)
	}
	deadLetterID = strings.TrimSpace(deadLetterID)
	if deadLetterID == "" {
		return core.IntakeResult{}, intakeBadInput("intake: dead letter id is required", nil)
	}

	record, err := c.deadLetters.Get(ctx, deadLetterID)
	if err != nil {
		return core.IntakeResult{}, intakeWrapError(
			err,
			goerrors.CategoryNotFound,
			"intake: dead letter lookup failed",
			http.StatusNotFound,
			core.IntakeErrorHandlerNotFound,
			map[string]any{"dead_letter_id": deadLetterID},
		)
	}

	event := core.InboundEvent{
		Provider:  record.Provider,
		EventKind: record.EventKind,
		Payload:   record.Payload,
		Metadata:  map[string]any{"replayed_from": record.ID},
	}
	// The record does not carry the signature; recover it from the
	// original attempt when it is still available.
	if original, err := c.store.GetByID(ctx, record.AttemptID); err == nil {
		event.Signature = original.Signature
	}

	result, err := c.Submit(ctx, event)
	if err != nil {
		return result, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["replayed_from"] = record.ID
	c.logger.Info("dead letter replayed",
		"dead_letter_id", record.ID,
		"attempt_id", result.AttemptID,
		"provider", record.Provider,
	)
	return result, nil
}

// process runs one dispatch and persists the resulting transition. It
// returns the attempt status after the transition.
func (c *Coordinator) process(ctx context.Context, attempt *core.DeliveryAttempt, event core.InboundEvent) core.AttemptStatus {
	now := c.now()
	attempt.Status = core.AttemptStatusProcessing
	attempt.LastAttemptAt = &now

	outcome := c.dispatcher.Dispatch(ctx, event)
	attempt.ResponseTimeMs = outcome.ResponseTime.Milliseconds()

	key := attempt.BreakerKey()
	c.gate.RecordOutcome(ctx, key, outcome.Success)

	if outcome.Success {
		attempt.Status = core.AttemptStatusSuccess
		attempt.ErrorMessage = ""
		attempt.NextRetryAt = nil
		c.persist(ctx, attempt)
		c.metrics.IncCounter(ctx, "intake.process.success", 1, map[string]string{"provider": attempt.Provider})
		c.logger.Info("delivery succeeded",
			"attempt_id", attempt.ID,
			"provider", attempt.Provider,
			"event_kind", attempt.EventKind,
			"attempt_number", attempt.AttemptNumber,
		)
		return attempt.Status
	}

	attempt.ErrorMessage = outcome.ErrorMessage
	attempt.FailureLog = append(attempt.FailureLog, core.AttemptFailure{
		AttemptNumber: attempt.AttemptNumber,
		ErrorMessage:  outcome.ErrorMessage,
		Terminal:      outcome.Terminal,
		OccurredAt:    now,
	})

	exhausted := attempt.AttemptNumber >= attempt.MaxAttempts
	if outcome.Terminal || exhausted {
		c.deadLetter(ctx, attempt)
		return attempt.Status
	}

	attempt.AttemptNumber++
	delay := c.scheduler.NextDelay(attempt.AttemptNumber)
	dueAt := now.Add(delay)
	attempt.Status = core.AttemptStatusPending
	attempt.NextRetryAt = &dueAt
	c.persist(ctx, attempt)

	if err := c.scheduler.Schedule(ctx, attempt.ID, dueAt); err != nil {
		c.logger.Error("retry schedule failed",
			"attempt_id", attempt.ID,
			"due_at", dueAt.Format(time.RFC3339),
			"error", err.Error(),
		)
		c.metrics.IncCounter(ctx, "intake.retry.schedule_failures", 1, nil)
	}
	c.metrics.IncCounter(ctx, "intake.process.rescheduled", 1, map[string]string{"provider": attempt.Provider})
	c.logger.Warn("delivery failed, retry scheduled",
		"attempt_id", attempt.ID,
		"provider", attempt.Provider,
		"attempt_number", attempt.AttemptNumber,
		"due_at", dueAt.Format(time.RFC3339),
		"error", outcome.ErrorMessage,
	)
	return attempt.Status
}

// freeze reschedules a gate-rejected retry without consuming an attempt.
func (c *Coordinator) freeze(ctx context.Context, attempt *core.DeliveryAttempt, gateErr error) {
	delay := c.scheduler.NextDelay(attempt.AttemptNumber)
	var openErr breaker.CircuitOpenError
	if errors.As(gateErr, &openErr) && openErr.RetryAfter > 0 {
		delay = openErr.RetryAfter
	}

	dueAt := c.now().Add(delay)
	attempt.Status = core.AttemptStatusPending
	attempt.NextRetryAt = &dueAt
	c.persist(ctx, attempt)

	if err := c.scheduler.Schedule(ctx, attempt.ID, dueAt); err != nil {
		c.logger.Error("frozen retry schedule failed", "attempt_id", attempt.ID, "error", err.Error())
	}
	c.metrics.IncCounter(ctx, "intake.retry.frozen", 1, map[string]string{"provider": attempt.Provider})
	c.logger.Info("retry frozen by open circuit",
		"attempt_id", attempt.ID,
		"provider", attempt.Provider,
		"event_kind", attempt.EventKind,
		"due_at", dueAt.Format(time.RFC3339),
	)
}

func (c *Coordinator) deadLetter(ctx context.Context, attempt *core.DeliveryAttempt) {
	attempt.Status = core.AttemptStatusDeadLetter
	attempt.NextRetryAt = nil
	c.persist(ctx, attempt)

	if _, err := c.sink.DeadLetter(ctx, *attempt); err != nil {
		c.logger.Error("dead letter write failed", "attempt_id", attempt.ID, "error", err.Error())
		c.metrics.IncCounter(ctx, "intake.dead_letter.failures", 1, nil)
	}
}

func (c *Coordinator) rejectAtGate(ctx context.Context, key core.BreakerKey, gateErr error) (core.IntakeResult, error) {
	c.metrics.IncCounter(ctx, "intake.submit.rejected", 1, map[string]string{
		"provider":   key.Provider,
		"event_kind": key.EventKind,
	})
	c.logger.Info("submission rejected by open circuit",
		"provider", key.Provider,
		"event_kind", key.EventKind,
	)

	result := core.IntakeResult{StatusCode: http.StatusTooManyRequests}
	var openErr breaker.CircuitOpenError
	if errors.As(gateErr, &openErr) {
		result.Metadata = map[string]any{"retry_after_ms": openErr.RetryAfter.Milliseconds()}
		return result, openErr.ToIntakeError()
	}
	return result, core.DefaultErrorMapper(gateErr)
}

// persist updates the attempt record. Lifecycle decisions are already
// made by the time this runs, so a store failure is logged and absorbed.
func (c *Coordinator) persist(ctx context.Context, attempt *core.DeliveryAttempt) {
	if err := c.store.Update(ctx, attempt); err != nil {
		c.logger.Error("attempt update failed",
			"attempt_id", attempt.ID,
			"status", string(attempt.Status),
			"needs_reconcile", true,
			"error", err.Error(),
		)
		c.metrics.IncCounter(ctx, "intake.persistence.failures", 1, map[string]string{"needs_reconcile": "true"})
	}
}

func (c *Coordinator) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) newID() string {
	if c != nil && c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func normalizeEvent(event core.InboundEvent) core.InboundEvent {
	event.Provider = strings.TrimSpace(strings.ToLower(event.Provider))
	event.EventKind = strings.TrimSpace(strings.ToLower(event.EventKind))
	event.Signature = strings.TrimSpace(event.Signature)
	return event
}

func validateEvent(event core.InboundEvent) error {
	if event.Provider == "" {
		return intakeBadInput("intake: provider is required", nil)
	}
	if event.EventKind == "" {
		return intakeBadInput("intake: event kind is required", nil)
	}
	if len(event.Payload) == 0 {
		return intakeBadInput("intake: payload is required", map[string]any{
			"provider":   event.Provider,
			"event_kind": event.EventKind,
		})
	}
	return nil
}

func eventFromAttempt(attempt core.DeliveryAttempt) core.InboundEvent {
	return core.InboundEvent{
		Provider:  attempt.Provider,
		EventKind: attempt.EventKind,
		Payload:   attempt.Payload,
		Signature: attempt.Signature,
	}
}

var _ core.IntakeService = (*Coordinator)(nil)
