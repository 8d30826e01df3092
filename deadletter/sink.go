package deadletter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-intake/core"
)

// Sink writes the terminal record for an exhausted or terminally failed
// attempt and notifies the escalation hook. The write is authoritative;
// a failed notification is logged and never undoes it.
type Sink struct {
	Store      core.DeadLetterStore
	Escalation core.EscalationHook
	Logger     core.Logger
	Metrics    core.MetricsRecorder
	Now        func() time.Time
	NewID      func() string
}

func NewSink(store core.DeadLetterStore, escalation core.EscalationHook) *Sink {
	_, logger := core.ResolveLogger("deadletter", nil, nil)
	return &Sink{
		Store:      store,
		Escalation: escalation,
		Logger:     logger,
		Metrics:    core.NopMetricsRecorder{},
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      func() string { return uuid.NewString() },
	}
}

func (s *Sink) DeadLetter(ctx context.Context, attempt core.DeliveryAttempt) (core.DeadLetterRecord, error) {
	if s == nil || s.Store == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("deadletter: sink store is not configured")
	}
	if strings.TrimSpace(attempt.ID) == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("deadletter: attempt id is required")
	}

	record := core.DeadLetterRecord{
		ID:           s.newID(),
		AttemptID:    attempt.ID,
		Provider:     attempt.Provider,
		EventKind:    attempt.EventKind,
		Payload:      attempt.Payload,
		AttemptCount: attempt.AttemptNumber,
		LastError:    attempt.ErrorMessage,
		FailureLog:   append([]core.AttemptFailure(nil), attempt.FailureLog...),
		CreatedAt:    s.now(),
	}

	if err := s.Store.Append(ctx, record); err != nil {
		return core.DeadLetterRecord{}, fmt.Errorf("deadletter: append failed for attempt %q: %w", attempt.ID, err)
	}

	s.metrics().IncCounter(ctx, "intake.dead_letter.total", 1, map[string]string{
		"provider":   attempt.Provider,
		"event_kind": attempt.EventKind,
	})
	s.logger().Warn("delivery dead lettered",
		"attempt_id", attempt.ID,
		"provider", attempt.Provider,
		"event_kind", attempt.EventKind,
		"attempt_count", attempt.AttemptNumber,
		"last_error", attempt.ErrorMessage,
	)

	if s.Escalation != nil {
		if err := s.Escalation.Notify(ctx, record); err != nil {
			s.logger().Error("dead letter escalation failed",
				"dead_letter_id", record.ID,
				"attempt_id", attempt.ID,
				"error", err.Error(),
			)
		}
	}
	return record, nil
}

func (s *Sink) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Sink) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sink) logger() core.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return glog.Nop()
}

func (s *Sink) metrics() core.MetricsRecorder {
	if s != nil && s.Metrics != nil {
		return s.Metrics
	}
	return core.NopMetricsRecorder{}
}

// MemoryStore keeps dead letters in process, newest first per provider.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.DeadLetterRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]core.DeadLetterRecord{}}
}

func (s *MemoryStore) Append(_ context.Context, record core.DeadLetterRecord) error {
	if s == nil {
		return fmt.Errorf("deadletter: memory store is nil")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("deadletter: record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("deadletter: record %q already exists", record.ID)
	}
	s.records[record.ID] = record
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("deadletter: memory store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return core.DeadLetterRecord{}, fmt.Errorf("deadletter: record %q not found", strings.TrimSpace(id))
	}
	return record, nil
}

func (s *MemoryStore) ListByProvider(_ context.Context, provider string, limit int) ([]core.DeadLetterRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("deadletter: memory store is nil")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := []core.DeadLetterRecord{}
	for _, record := range s.records {
		if strings.TrimSpace(strings.ToLower(record.Provider)) == provider {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

var (
	_ core.DeadLetterSink  = (*Sink)(nil)
	_ core.DeadLetterStore = (*MemoryStore)(nil)
)
