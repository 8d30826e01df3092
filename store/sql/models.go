package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
	"github.com/goliatone/go-webhook-intake/core"
)

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_attempts,alias:wda"`

	ID             string                `bun:"id,pk"`
	Provider       string                `bun:"provider,notnull"`
	EventKind      string                `bun:"event_kind,notnull"`
	Payload        []byte                `bun:"payload"`
	Signature      string                `bun:"signature"`
	AttemptNumber  int                   `bun:"attempt_number,notnull"`
	MaxAttempts    int                   `bun:"max_attempts,notnull"`
	NextRetryAt    *time.Time            `bun:"next_retry_at,nullzero"`
	Status         string                `bun:"status,notnull"`
	ErrorMessage   string                `bun:"error_message"`
	ResponseTimeMs int64                 `bun:"response_time_ms,notnull"`
	FailureLog     []core.AttemptFailure `bun:"failure_log,type:jsonb,notnull"`
	CreatedAt      time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastAttemptAt  *time.Time            `bun:"last_attempt_at,nullzero"`
	UpdatedAt      time.Time             `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type retryQueueRecord struct {
	bun.BaseModel `bun:"table:webhook_retry_queue,alias:wrq"`

	ID        string    `bun:"id,pk"`
	AttemptID string    `bun:"attempt_id,notnull,unique"`
	DueAt     time.Time `bun:"due_at,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:webhook_dead_letters,alias:wdl"`

	ID           string                `bun:"id,pk"`
	AttemptID    string                `bun:"attempt_id,notnull"`
	Provider     string                `bun:"provider,notnull"`
	EventKind    string                `bun:"event_kind,notnull"`
	Payload      []byte                `bun:"payload"`
	AttemptCount int                   `bun:"attempt_count,notnull"`
	LastError    string                `bun:"last_error"`
	FailureLog   []core.AttemptFailure `bun:"failure_log,type:jsonb,notnull"`
	CreatedAt    time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

const retryQueueStatusPending = "pending"

func attemptToDomain(record *deliveryAttemptRecord) core.DeliveryAttempt {
	if record == nil {
		return core.DeliveryAttempt{}
	}
	result := core.DeliveryAttempt{
		ID:             record.ID,
		Provider:       record.Provider,
		EventKind:      record.EventKind,
		Payload:        append([]byte(nil), record.Payload...),
		Signature:      record.Signature,
		AttemptNumber:  record.AttemptNumber,
		MaxAttempts:    record.MaxAttempts,
		Status:         core.AttemptStatus(record.Status),
		ErrorMessage:   record.ErrorMessage,
		ResponseTimeMs: record.ResponseTimeMs,
		FailureLog:     append([]core.AttemptFailure(nil), record.FailureLog...),
		CreatedAt:      record.CreatedAt,
	}
	if record.NextRetryAt != nil {
		value := *record.NextRetryAt
		result.NextRetryAt = &value
	}
	if record.LastAttemptAt != nil {
		value := *record.LastAttemptAt
		result.LastAttemptAt = &value
	}
	return result
}

func attemptToRecord(attempt *core.DeliveryAttempt, now time.Time) *deliveryAttemptRecord {
	if attempt == nil {
		return nil
	}
	record := &deliveryAttemptRecord{
		ID:             attempt.ID,
		Provider:       attempt.Provider,
		EventKind:      attempt.EventKind,
		Payload:        append([]byte(nil), attempt.Payload...),
		Signature:      attempt.Signature,
		AttemptNumber:  attempt.AttemptNumber,
		MaxAttempts:    attempt.MaxAttempts,
		Status:         string(attempt.Status),
		ErrorMessage:   attempt.ErrorMessage,
		ResponseTimeMs: attempt.ResponseTimeMs,
		FailureLog:     append([]core.AttemptFailure{}, attempt.FailureLog...),
		CreatedAt:      attempt.CreatedAt,
		UpdatedAt:      now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if attempt.NextRetryAt != nil {
		value := attempt.NextRetryAt.UTC()
		record.NextRetryAt = &value
	}
	if attempt.LastAttemptAt != nil {
		value := attempt.LastAttemptAt.UTC()
		record.LastAttemptAt = &value
	}
	return record
}

func deadLetterToDomain(record *deadLetterRecord) core.DeadLetterRecord {
	if record == nil {
		return core.DeadLetterRecord{}
	}
	return core.DeadLetterRecord{
		ID:           record.ID,
		AttemptID:    record.AttemptID,
		Provider:     record.Provider,
		EventKind:    record.EventKind,
		Payload:      append([]byte(nil), record.Payload...),
		AttemptCount: record.AttemptCount,
		LastError:    record.LastError,
		FailureLog:   append([]core.AttemptFailure(nil), record.FailureLog...),
		CreatedAt:    record.CreatedAt,
	}
}
