package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-intake/core"
)

const (
	TypeSubmitEvent      = "intake.command.event.submit"
	TypeProcessDue       = "intake.command.retry.process_due"
	TypeReplayDeadLetter = "intake.command.deadletter.replay"
)

type SubmitEventMessage struct {
	Event core.InboundEvent
}

func (SubmitEventMessage) Type() string { return TypeSubmitEvent }

func (m SubmitEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Provider) == "" {
		return fmt.Errorf("command: event provider is required")
	}
	if strings.TrimSpace(m.Event.EventKind) == "" {
		return fmt.Errorf("command: event kind is required")
	}
	if len(m.Event.Payload) == 0 {
		return fmt.Errorf("command: event payload is required")
	}
	return nil
}

type ProcessDueMessage struct {
	BatchSize int
}

func (ProcessDueMessage) Type() string { return TypeProcessDue }

func (m ProcessDueMessage) Validate() error {
	if m.BatchSize < 0 {
		return fmt.Errorf("command: batch size must not be negative")
	}
	return nil
}

type ReplayDeadLetterMessage struct {
	DeadLetterID string
}

func (ReplayDeadLetterMessage) Type() string { return TypeReplayDeadLetter }

func (m ReplayDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.DeadLetterID) == "" {
		return fmt.Errorf("command: dead letter id is required")
	}
	return nil
}
