package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// DeliveryAttemptStore is the external persistence collaborator. It is a
// pure record of truth; no retry logic lives behind it.
type DeliveryAttemptStore interface {
	Create(ctx context.Context, attempt *DeliveryAttempt) error
	Update(ctx context.Context, attempt *DeliveryAttempt) error
	GetByID(ctx context.Context, id string) (DeliveryAttempt, error)
	QueryByProviderAndWindow(ctx context.Context, provider string, since time.Time) ([]DeliveryAttempt, error)
}

type RetryQueueItem struct {
	AttemptID string
	DueAt     time.Time
}

// RetryQueue is a durable time-ordered queue of attempts waiting for
// reprocessing. ClaimDue removes returned items from the pending set;
// each due item is handed to exactly one caller.
type RetryQueue interface {
	Schedule(ctx context.Context, attemptID string, dueAt time.Time) error
	ClaimDue(ctx context.Context, limit int) ([]RetryQueueItem, error)
}

// RetryScheduler couples the backoff policy with the durable queue.
type RetryScheduler interface {
	NextDelay(attempt int) time.Duration
	Schedule(ctx context.Context, attemptID string, dueAt time.Time) error
	ClaimDue(ctx context.Context, limit int) ([]RetryQueueItem, error)
}

// CircuitGate guards a (provider, event kind) pair. Allow returns a
// breaker rejection error while the circuit is open; RecordOutcome feeds
// the consecutive-failure bookkeeping.
type CircuitGate interface {
	Allow(ctx context.Context, key BreakerKey) error
	RecordOutcome(ctx context.Context, key BreakerKey, success bool)
	Snapshot() []BreakerSnapshot
}

// Dispatcher verifies and routes one event, returning the classified
// outcome with timing for SLA accounting.
type Dispatcher interface {
	Dispatch(ctx context.Context, event InboundEvent) DispatchOutcome
}

type DeadLetterStore interface {
	Append(ctx context.Context, record DeadLetterRecord) error
	Get(ctx context.Context, id string) (DeadLetterRecord, error)
	ListByProvider(ctx context.Context, provider string, limit int) ([]DeadLetterRecord, error)
}

// DeadLetterSink writes the terminal record and fires escalation.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, attempt DeliveryAttempt) (DeadLetterRecord, error)
}

// EscalationHook is fire-and-forget; a notify failure never affects the
// durability of the dead-letter write.
type EscalationHook interface {
	Notify(ctx context.Context, record DeadLetterRecord) error
}

type ViolationReporter interface {
	ReportViolation(ctx context.Context, provider string, status SLAStatus) error
}

// SignatureVerifier is the per-provider verification contract. A failed
// verification is terminal: the signature will never become valid on retry.
type SignatureVerifier interface {
	Verify(ctx context.Context, event InboundEvent) error
}

type EventHandler interface {
	Handle(ctx context.Context, event InboundEvent) error
}

type HandlerRouter interface {
	Register(provider string, eventKind string, handler EventHandler) error
	Resolve(provider string, eventKind string) (EventHandler, bool)
}

// MetricsRecorder is purely observational and never gates behavior.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// IntakeService is the coordinator surface consumed by the command and
// query packages.
type IntakeService interface {
	Submit(ctx context.Context, event InboundEvent) (IntakeResult, error)
	ProcessDue(ctx context.Context, batchSize int) (RetryStats, error)
	ReplayDeadLetter(ctx context.Context, deadLetterID string) (IntakeResult, error)
}

type RetryStats struct {
	Claimed      int
	Succeeded    int
	Rescheduled  int
	DeadLettered int
	Frozen       int
}
