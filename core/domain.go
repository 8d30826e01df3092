package core

import (
	"fmt"
	"strings"
	"time"
)

type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "pending"
	AttemptStatusProcessing AttemptStatus = "processing"
	AttemptStatusSuccess    AttemptStatus = "success"
	AttemptStatusFailed     AttemptStatus = "failed"
	AttemptStatusDeadLetter AttemptStatus = "dead_letter"
)

// Terminal reports whether the status ends the attempt lifecycle. A
// terminal record is immutable.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSuccess || s == AttemptStatusDeadLetter
}

type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"
	BreakerStateOpen     BreakerState = "open"
	BreakerStateHalfOpen BreakerState = "half_open"
)

// BreakerKey identifies the circuit-breaker bucket for a delivery.
type BreakerKey struct {
	Provider  string
	EventKind string
}

func NewBreakerKey(provider string, eventKind string) BreakerKey {
	return BreakerKey{
		Provider:  strings.TrimSpace(strings.ToLower(provider)),
		EventKind: strings.TrimSpace(strings.ToLower(eventKind)),
	}
}

func (k BreakerKey) String() string {
	return k.Provider + ":" + k.EventKind
}

func (k BreakerKey) Validate() error {
	if strings.TrimSpace(k.Provider) == "" {
		return fmt.Errorf("core: breaker key provider is required")
	}
	if strings.TrimSpace(k.EventKind) == "" {
		return fmt.Errorf("core: breaker key event kind is required")
	}
	return nil
}

// AttemptFailure is one entry in an attempt's failure history. The full
// history travels with the attempt so the dead-letter record can carry it.
type AttemptFailure struct {
	AttemptNumber int       `json:"attempt_number"`
	ErrorMessage  string    `json:"error_message"`
	Terminal      bool      `json:"terminal"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DeliveryAttempt is the durable processing history of one inbound event.
// Once Status is terminal the record must not be mutated again.
type DeliveryAttempt struct {
	ID             string
	Provider       string
	EventKind      string
	Payload        []byte
	Signature      string
	AttemptNumber  int
	MaxAttempts    int
	NextRetryAt    *time.Time
	Status         AttemptStatus
	ErrorMessage   string
	ResponseTimeMs int64
	FailureLog     []AttemptFailure
	CreatedAt      time.Time
	LastAttemptAt  *time.Time
}

func (a DeliveryAttempt) BreakerKey() BreakerKey {
	return NewBreakerKey(a.Provider, a.EventKind)
}

// BreakerSnapshot is a point-in-time view of one circuit breaker, exposed
// for audit only.
type BreakerSnapshot struct {
	Key           BreakerKey
	State         BreakerState
	FailureCount  int
	SuccessCount  int
	Threshold     int
	Timeout       time.Duration
	LastFailureAt *time.Time
}

type SLAConfig struct {
	Provider                string
	SuccessRateThresholdPct float64
	ResponseTimeThresholdMs int64
	MonitoringWindow        time.Duration
}

// SLAStatus is a derived report over the trailing monitoring window. It is
// never persisted as authoritative state.
type SLAStatus struct {
	Provider          string
	WindowStart       time.Time
	EvaluatedAt       time.Time
	TotalDeliveries   int
	Successes         int
	SuccessRatePct    float64
	AvgResponseTimeMs float64
	Compliant         bool
}

// InboundEvent is a raw provider notification as handed to the engine.
// Payload stays opaque; Signature and Headers feed verification only.
type InboundEvent struct {
	Provider  string
	EventKind string
	Payload   []byte
	Signature string
	Headers   map[string]string
	Metadata  map[string]any
}

// IntakeResult is the only thing the original sender ever sees: accepted
// for processing, or rejected at the gate.
type IntakeResult struct {
	Accepted   bool
	StatusCode int
	AttemptID  string
	Metadata   map[string]any
}

// DispatchOutcome classifies one dispatcher call. Terminal failures must
// never be retried.
type DispatchOutcome struct {
	Success      bool
	Terminal     bool
	ErrorMessage string
	ResponseTime time.Duration
}

type DeadLetterRecord struct {
	ID           string
	AttemptID    string
	Provider     string
	EventKind    string
	Payload      []byte
	AttemptCount int
	LastError    string
	FailureLog   []AttemptFailure
	CreatedAt    time.Time
}

// HandlerError lets an event handler mark a failure terminal. Unflagged
// handler errors default to transient.
type HandlerError struct {
	Message  string
	Terminal bool
	Cause    error
}

func (e *HandlerError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "core: handler error"
}

func (e *HandlerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewHandlerError(message string, cause error) *HandlerError {
	return &HandlerError{Message: strings.TrimSpace(message), Cause: cause}
}

func NewTerminalHandlerError(message string, cause error) *HandlerError {
	return &HandlerError{Message: strings.TrimSpace(message), Terminal: true, Cause: cause}
}
