package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-intake/breaker"
	"github.com/goliatone/go-webhook-intake/core"
	"github.com/goliatone/go-webhook-intake/deadletter"
	"github.com/goliatone/go-webhook-intake/retry"
)

type memoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]core.DeliveryAttempt

	createErr error
	updateErr error
}

func newMemoryAttemptStore() *memoryAttemptStore {
	return &memoryAttemptStore{attempts: map[string]core.DeliveryAttempt{}}
}

func (s *memoryAttemptStore) Create(_ context.Context, attempt *core.DeliveryAttempt) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("duplicate attempt %q", attempt.ID)
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *memoryAttemptStore) Update(_ context.Context, attempt *core.DeliveryAttempt) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; !exists {
		return fmt.Errorf("attempt %q not found", attempt.ID)
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *memoryAttemptStore) GetByID(_ context.Context, id string) (core.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return core.DeliveryAttempt{}, fmt.Errorf("attempt %q not found", id)
	}
	return attempt, nil
}

func (s *memoryAttemptStore) QueryByProviderAndWindow(_ context.Context, provider string, since time.Time) ([]core.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []core.DeliveryAttempt{}
	for _, attempt := range s.attempts {
		if attempt.Provider == provider && !attempt.CreatedAt.Before(since) {
			matched = append(matched, attempt)
		}
	}
	return matched, nil
}

type scriptedDispatcher struct {
	mu       sync.Mutex
	outcomes []core.DispatchOutcome
	calls    int
}

func (d *scriptedDispatcher) Dispatch(context.Context, core.InboundEvent) core.DispatchOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.outcomes) == 0 {
		return core.DispatchOutcome{Success: true, ResponseTime: 10 * time.Millisecond}
	}
	outcome := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return outcome
}

type countingHook struct {
	mu      sync.Mutex
	records []core.DeadLetterRecord
}

func (h *countingHook) Notify(_ context.Context, record core.DeadLetterRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

type harness struct {
	coordinator *Coordinator
	store       *memoryAttemptStore
	dispatcher  *scriptedDispatcher
	queue       *retry.MemoryQueue
	gate        *breaker.Registry
	deadLetters *deadletter.MemoryStore
	hook        *countingHook
	clock       time.Time
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()

	h := &harness{
		store:       newMemoryAttemptStore(),
		dispatcher:  &scriptedDispatcher{},
		queue:       retry.NewMemoryQueue(),
		gate:        breaker.NewRegistry(5, time.Minute),
		deadLetters: deadletter.NewMemoryStore(),
		hook:        &countingHook{},
		clock:       time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.clock }
	h.queue.Now = now
	h.gate.Now = now

	backoff := retry.NewExponentialBackoff(time.Second, 15*time.Minute, 2, 0)
	scheduler := retry.NewScheduler(backoff, h.queue)

	sink := deadletter.NewSink(h.deadLetters, h.hook)
	sink.Now = now

	coordinator, err := NewCoordinator(Dependencies{
		Store:       h.store,
		Scheduler:   scheduler,
		Gate:        h.gate,
		Dispatcher:  h.dispatcher,
		Sink:        sink,
		DeadLetters: h.deadLetters,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("coordinator setup failed: %v", err)
	}
	coordinator.Now = now
	sequence := 0
	coordinator.NewID = func() string {
		sequence++
		return fmt.Sprintf("attempt-%d", sequence)
	}
	h.coordinator = coordinator
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func submitEvent() core.InboundEvent {
	return core.InboundEvent{
		Provider:  "square",
		EventKind: "payment.updated",
		Payload:   []byte(`{"id":"pay_1"}`),
		Signature: "sig",
	}
}

func transient(msg string) core.DispatchOutcome {
	return core.DispatchOutcome{ErrorMessage: msg, ResponseTime: 5 * time.Millisecond}
}

func terminal(msg string) core.DispatchOutcome {
	return core.DispatchOutcome{Terminal: true, ErrorMessage: msg, ResponseTime: 5 * time.Millisecond}
}

func success() core.DispatchOutcome {
	return core.DispatchOutcome{Success: true, ResponseTime: 5 * time.Millisecond}
}

func TestSubmitSuccessFirstAttempt(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{success()}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Accepted || result.StatusCode != 202 {
		t.Fatalf("expected accepted 202, got %+v", result)
	}

	attempt, err := h.store.GetByID(context.Background(), result.AttemptID)
	if err != nil {
		t.Fatalf("attempt missing: %v", err)
	}
	if attempt.Status != core.AttemptStatusSuccess {
		t.Fatalf("expected success status, got %s", attempt.Status)
	}
	if attempt.AttemptNumber != 1 {
		t.Fatalf("expected attempt number 1, got %d", attempt.AttemptNumber)
	}
	if attempt.NextRetryAt != nil {
		t.Fatal("successful attempt must not have a retry time")
	}
}

func TestSubmitValidatesEvent(t *testing.T) {
	h := newHarness(t, 10)

	cases := []core.InboundEvent{
		{EventKind: "payment.updated", Payload: []byte("{}")},
		{Provider: "square", Payload: []byte("{}")},
		{Provider: "square", EventKind: "payment.updated"},
	}
	for i, event := range cases {
		if _, err := h.coordinator.Submit(context.Background(), event); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if h.dispatcher.calls != 0 {
		t.Fatal("invalid events must not reach the dispatcher")
	}
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{
		transient("down 1"),
		transient("down 2"),
		transient("down 3"),
		success(),
	}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Drain three retries, stepping past each backoff delay.
	for i := 0; i < 3; i++ {
		h.advance(20 * time.Minute)
		stats, err := h.coordinator.ProcessDue(context.Background(), 10)
		if err != nil {
			t.Fatalf("retry %d failed: %v", i+1, err)
		}
		if stats.Claimed != 1 {
			t.Fatalf("retry %d: expected 1 claim, got %d", i+1, stats.Claimed)
		}
	}

	attempt, err := h.store.GetByID(context.Background(), result.AttemptID)
	if err != nil {
		t.Fatalf("attempt missing: %v", err)
	}
	if attempt.Status != core.AttemptStatusSuccess {
		t.Fatalf("expected eventual success, got %s (%s)", attempt.Status, attempt.ErrorMessage)
	}
	if attempt.AttemptNumber != 4 {
		t.Fatalf("expected attempt number 4 after three retries, got %d", attempt.AttemptNumber)
	}
	if len(attempt.FailureLog) != 3 {
		t.Fatalf("expected 3 failure log entries, got %d", len(attempt.FailureLog))
	}
	if h.queue.Len() != 0 {
		t.Fatalf("expected empty retry queue, got %d pending", h.queue.Len())
	}
}

func TestTerminalFailureDeadLettersImmediately(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{terminal("signature verification failed: bad digest")}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	attempt, _ := h.store.GetByID(context.Background(), result.AttemptID)
	if attempt.Status != core.AttemptStatusDeadLetter {
		t.Fatalf("expected dead_letter status, got %s", attempt.Status)
	}
	if attempt.AttemptNumber != 1 {
		t.Fatalf("terminal failure must not consume retries, got attempt %d", attempt.AttemptNumber)
	}
	if len(h.hook.records) != 1 {
		t.Fatalf("expected one escalation, got %d", len(h.hook.records))
	}
	if h.queue.Len() != 0 {
		t.Fatal("terminal failure must not schedule a retry")
	}
}

func TestExhaustionDeadLetters(t *testing.T) {
	h := newHarness(t, 3)
	h.dispatcher.outcomes = []core.DispatchOutcome{
		transient("down 1"),
		transient("down 2"),
		transient("down 3"),
	}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		h.advance(20 * time.Minute)
		if _, err := h.coordinator.ProcessDue(context.Background(), 10); err != nil {
			t.Fatalf("retry %d failed: %v", i+1, err)
		}
	}

	attempt, _ := h.store.GetByID(context.Background(), result.AttemptID)
	if attempt.Status != core.AttemptStatusDeadLetter {
		t.Fatalf("expected dead_letter after exhaustion, got %s", attempt.Status)
	}
	if attempt.AttemptNumber != 3 {
		t.Fatalf("expected exactly max attempts, got %d", attempt.AttemptNumber)
	}
	if len(h.hook.records) != 1 {
		t.Fatalf("expected exactly one escalation, got %d", len(h.hook.records))
	}
	if h.hook.records[0].AttemptCount != 3 {
		t.Fatalf("escalation should carry final attempt count, got %d", h.hook.records[0].AttemptCount)
	}
	if len(h.hook.records[0].FailureLog) != 3 {
		t.Fatalf("escalation should carry full failure history, got %d entries", len(h.hook.records[0].FailureLog))
	}
	if h.queue.Len() != 0 {
		t.Fatal("dead-lettered attempt must not stay scheduled")
	}
}

func TestSubmitRejectedWhileCircuitOpen(t *testing.T) {
	h := newHarness(t, 10)

	key := core.NewBreakerKey("square", "payment.updated")
	for i := 0; i < 5; i++ {
		h.gate.RecordOutcome(context.Background(), key, false)
	}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err == nil {
		t.Fatal("expected gate rejection error")
	}
	if result.Accepted {
		t.Fatal("expected rejected result")
	}
	if result.StatusCode != 429 {
		t.Fatalf("expected 429, got %d", result.StatusCode)
	}
	if h.dispatcher.calls != 0 {
		t.Fatal("rejected events must not be dispatched")
	}
	if len(h.store.attempts) != 0 {
		t.Fatal("rejected events must not create attempt records")
	}
}

func TestRetryFrozenByOpenCircuitDoesNotConsumeAttempt(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{transient("down")}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Trip the breaker with unrelated outcomes before the retry is due.
	key := core.NewBreakerKey("square", "payment.updated")
	for i := 0; i < 5; i++ {
		h.gate.RecordOutcome(context.Background(), key, false)
	}

	h.advance(10 * time.Second)
	stats, err := h.coordinator.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("process due failed: %v", err)
	}
	if stats.Frozen != 1 {
		t.Fatalf("expected one frozen retry, got %+v", stats)
	}

	attempt, _ := h.store.GetByID(context.Background(), result.AttemptID)
	if attempt.AttemptNumber != 2 {
		t.Fatalf("frozen retry must not consume an attempt, got %d", attempt.AttemptNumber)
	}
	if attempt.Status != core.AttemptStatusPending {
		t.Fatalf("frozen attempt should stay pending, got %s", attempt.Status)
	}
	if h.queue.Len() != 1 {
		t.Fatalf("frozen attempt must be rescheduled, queue has %d", h.queue.Len())
	}
	if h.dispatcher.calls != 1 {
		t.Fatalf("frozen retry must not dispatch, dispatcher ran %d times", h.dispatcher.calls)
	}
}

func TestProcessDueSkipsTerminalAttempts(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{success()}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A stale queue entry for an already-successful attempt is skipped.
	if err := h.queue.Schedule(context.Background(), result.AttemptID, h.clock.Add(-time.Second)); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	stats, err := h.coordinator.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("process due failed: %v", err)
	}
	if stats.Claimed != 1 || stats.Succeeded != 0 || stats.Rescheduled != 0 {
		t.Fatalf("expected claim with no processing, got %+v", stats)
	}
	if h.dispatcher.calls != 1 {
		t.Fatalf("terminal attempt must not redispatch, dispatcher ran %d times", h.dispatcher.calls)
	}
}

func TestProcessDueContinuesPastMissingAttempts(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{transient("down"), success()}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := h.queue.Schedule(context.Background(), "ghost-attempt", h.clock.Add(-time.Second)); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	h.advance(20 * time.Minute)
	stats, err := h.coordinator.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("process due failed: %v", err)
	}
	if stats.Claimed != 2 {
		t.Fatalf("expected both entries claimed, got %+v", stats)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("expected the real attempt to succeed, got %+v", stats)
	}

	attempt, _ := h.store.GetByID(context.Background(), result.AttemptID)
	if attempt.Status != core.AttemptStatusSuccess {
		t.Fatalf("expected success despite ghost entry, got %s", attempt.Status)
	}
}

func TestReplayDeadLetter(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{terminal("schema unsupported"), success()}

	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(h.hook.records) != 1 {
		t.Fatalf("expected dead letter, got %d", len(h.hook.records))
	}
	deadLetterID := h.hook.records[0].ID

	result, err := h.coordinator.ReplayDeadLetter(context.Background(), deadLetterID)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected replay accepted, got %+v", result)
	}
	if result.Metadata["replayed_from"] != deadLetterID {
		t.Fatalf("expected replay provenance, got %+v", result.Metadata)
	}

	replayed, err := h.store.GetByID(context.Background(), result.AttemptID)
	if err != nil {
		t.Fatalf("replayed attempt missing: %v", err)
	}
	if replayed.Status != core.AttemptStatusSuccess {
		t.Fatalf("expected replay to succeed, got %s", replayed.Status)
	}

	// The original record stays put for audit.
	if _, err := h.deadLetters.Get(context.Background(), deadLetterID); err != nil {
		t.Fatalf("original dead letter must remain: %v", err)
	}
}

func TestReplayDeadLetterUnknownID(t *testing.T) {
	h := newHarness(t, 10)
	if _, err := h.coordinator.ReplayDeadLetter(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown dead letter id")
	}
	if _, err := h.coordinator.ReplayDeadLetter(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank dead letter id")
	}
}

func TestSubmitProceedsWhenCreateFails(t *testing.T) {
	h := newHarness(t, 10)
	h.store.createErr = errors.New("connection refused")
	h.dispatcher.outcomes = []core.DispatchOutcome{success()}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("create failure must not reject the event: %v", err)
	}
	if !result.Accepted || result.StatusCode != 202 {
		t.Fatalf("expected accepted 202, got %+v", result)
	}
	if h.dispatcher.calls != 1 {
		t.Fatalf("dispatch must run best effort, ran %d times", h.dispatcher.calls)
	}
}

func TestHalfOpenProbeReleasedWhenCreateFails(t *testing.T) {
	h := newHarness(t, 10)

	key := core.NewBreakerKey("square", "payment.updated")
	for i := 0; i < 5; i++ {
		h.gate.RecordOutcome(context.Background(), key, false)
	}

	// The probe submission hits a failing store; the dispatch outcome must
	// still reach the breaker so the circuit does not stay half open.
	h.advance(2 * time.Minute)
	h.store.createErr = errors.New("connection refused")
	h.dispatcher.outcomes = []core.DispatchOutcome{success(), success()}

	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err != nil {
		t.Fatalf("expected probe submission accepted, got %v", err)
	}
	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err != nil {
		t.Fatalf("expected circuit closed after probe outcome, got %v", err)
	}
	if h.dispatcher.calls != 2 {
		t.Fatalf("expected both submissions dispatched, got %d", h.dispatcher.calls)
	}
}

func TestLifecycleContinuesWhenUpdateFails(t *testing.T) {
	h := newHarness(t, 10)
	h.dispatcher.outcomes = []core.DispatchOutcome{transient("down")}

	result, err := h.coordinator.Submit(context.Background(), submitEvent())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	h.store.updateErr = errors.New("connection refused")
	h.advance(20 * time.Minute)
	if _, err := h.coordinator.ProcessDue(context.Background(), 10); err != nil {
		t.Fatalf("lifecycle must absorb update failures: %v", err)
	}
	_ = result
}

func TestBreakerRecoversViaHalfOpenProbe(t *testing.T) {
	h := newHarness(t, 10)

	key := core.NewBreakerKey("square", "payment.updated")
	for i := 0; i < 5; i++ {
		h.gate.RecordOutcome(context.Background(), key, false)
	}
	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err == nil {
		t.Fatal("expected rejection while open")
	}

	// After the breaker timeout a probe is admitted and recovery closes
	// the circuit again.
	h.advance(2 * time.Minute)
	h.dispatcher.outcomes = []core.DispatchOutcome{success(), success()}
	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err != nil {
		t.Fatalf("expected probe admitted, got %v", err)
	}
	if _, err := h.coordinator.Submit(context.Background(), submitEvent()); err != nil {
		t.Fatalf("expected circuit closed after probe success, got %v", err)
	}
}
