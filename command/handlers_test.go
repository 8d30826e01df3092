package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-intake/core"
)

type stubIntakeService struct {
	submitFn     func(ctx context.Context, event core.InboundEvent) (core.IntakeResult, error)
	processDueFn func(ctx context.Context, batchSize int) (core.RetryStats, error)
	replayFn     func(ctx context.Context, deadLetterID string) (core.IntakeResult, error)
}

func (s stubIntakeService) Submit(ctx context.Context, event core.InboundEvent) (core.IntakeResult, error) {
	if s.submitFn == nil {
		return core.IntakeResult{}, errors.New("submit not stubbed")
	}
	return s.submitFn(ctx, event)
}

func (s stubIntakeService) ProcessDue(ctx context.Context, batchSize int) (core.RetryStats, error) {
	if s.processDueFn == nil {
		return core.RetryStats{}, errors.New("process due not stubbed")
	}
	return s.processDueFn(ctx, batchSize)
}

func (s stubIntakeService) ReplayDeadLetter(ctx context.Context, deadLetterID string) (core.IntakeResult, error) {
	if s.replayFn == nil {
		return core.IntakeResult{}, errors.New("replay not stubbed")
	}
	return s.replayFn(ctx, deadLetterID)
}

func TestSubmitEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.IntakeResult{Accepted: true, StatusCode: 202, AttemptID: "attempt-1"}
	called := false

	svc := stubIntakeService{
		submitFn: func(_ context.Context, event core.InboundEvent) (core.IntakeResult, error) {
			called = true
			if event.Provider != "square" {
				t.Fatalf("expected provider square, got %q", event.Provider)
			}
			return expected, nil
		},
	}

	cmd := NewSubmitEventCommand(svc)
	collector := gocmd.NewResult[core.IntakeResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SubmitEventMessage{Event: core.InboundEvent{
		Provider:  "square",
		EventKind: "payment.updated",
		Payload:   []byte(`{"id":"pay_1"}`),
	}})
	if err != nil {
		t.Fatalf("execute submit: %v", err)
	}
	if !called {
		t.Fatalf("expected submit invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.AttemptID != expected.AttemptID || !result.Accepted {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestProcessDueCommand_ExecuteStoresStats(t *testing.T) {
	expected := core.RetryStats{Claimed: 3, Succeeded: 2, Rescheduled: 1}
	svc := stubIntakeService{
		processDueFn: func(_ context.Context, batchSize int) (core.RetryStats, error) {
			if batchSize != 25 {
				t.Fatalf("expected batch size 25, got %d", batchSize)
			}
			return expected, nil
		},
	}

	cmd := NewProcessDueCommand(svc)
	collector := gocmd.NewResult[core.RetryStats]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, ProcessDueMessage{BatchSize: 25}); err != nil {
		t.Fatalf("execute process due: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected stats result")
	}
	if stored.Claimed != 3 || stored.Succeeded != 2 {
		t.Fatalf("unexpected stats: %#v", stored)
	}
}

func TestReplayDeadLetterCommand_ExecuteDelegates(t *testing.T) {
	expected := core.IntakeResult{Accepted: true, StatusCode: 202, AttemptID: "attempt-2"}
	svc := stubIntakeService{
		replayFn: func(_ context.Context, deadLetterID string) (core.IntakeResult, error) {
			if deadLetterID != "dl-1" {
				t.Fatalf("expected dead letter id dl-1, got %q", deadLetterID)
			}
			return expected, nil
		},
	}

	cmd := NewReplayDeadLetterCommand(svc)
	collector := gocmd.NewResult[core.IntakeResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, ReplayDeadLetterMessage{DeadLetterID: "dl-1"}); err != nil {
		t.Fatalf("execute replay: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected replay result")
	}
	if stored.AttemptID != expected.AttemptID {
		t.Fatalf("unexpected replay result: %#v", stored)
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := stubIntakeService{
		submitFn: func(context.Context, core.InboundEvent) (core.IntakeResult, error) {
			return core.IntakeResult{}, boom
		},
	}

	cmd := NewSubmitEventCommand(svc)
	err := cmd.Execute(context.Background(), SubmitEventMessage{Event: core.InboundEvent{
		Provider:  "square",
		EventKind: "payment.updated",
		Payload:   []byte(`{}`),
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error propagation, got %v", err)
	}
}

func TestCommands_RequireService(t *testing.T) {
	if err := (&SubmitEventCommand{}).Execute(context.Background(), SubmitEventMessage{}); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := (&ProcessDueCommand{}).Execute(context.Background(), ProcessDueMessage{}); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := (&ReplayDeadLetterCommand{}).Execute(context.Background(), ReplayDeadLetterMessage{}); err == nil {
		t.Fatal("expected missing service error")
	}
}

func TestMessageValidation(t *testing.T) {
	valid := SubmitEventMessage{Event: core.InboundEvent{
		Provider:  "square",
		EventKind: "payment.updated",
		Payload:   []byte(`{}`),
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid submit message, got %v", err)
	}
	if err := (SubmitEventMessage{}).Validate(); err == nil {
		t.Fatal("expected missing provider rejected")
	}
	if err := (SubmitEventMessage{Event: core.InboundEvent{Provider: "square", EventKind: "payment.updated"}}).Validate(); err == nil {
		t.Fatal("expected missing payload rejected")
	}
	if err := (ProcessDueMessage{BatchSize: -1}).Validate(); err == nil {
		t.Fatal("expected negative batch size rejected")
	}
	if err := (ReplayDeadLetterMessage{DeadLetterID: "  "}).Validate(); err == nil {
		t.Fatal("expected blank dead letter id rejected")
	}

	if (SubmitEventMessage{}).Type() != TypeSubmitEvent {
		t.Fatal("unexpected submit message type")
	}
	if (ProcessDueMessage{}).Type() != TypeProcessDue {
		t.Fatal("unexpected process due message type")
	}
	if (ReplayDeadLetterMessage{}).Type() != TypeReplayDeadLetter {
		t.Fatal("unexpected replay message type")
	}
}
