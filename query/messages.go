package query

import (
	"fmt"
	"strings"
	"time"
)

const (
	TypeGetDeliveryAttempt   = "intake.query.attempt.get"
	TypeListDeliveryAttempts = "intake.query.attempt.list"
	TypeGetDeadLetter        = "intake.query.deadletter.get"
	TypeListDeadLetters      = "intake.query.deadletter.list"
	TypeGetSLAStatus         = "intake.query.sla.get"
	TypeListBreakerStates    = "intake.query.breaker.list"
)

type GetDeliveryAttemptMessage struct {
	AttemptID string
}

func (GetDeliveryAttemptMessage) Type() string { return TypeGetDeliveryAttempt }

func (m GetDeliveryAttemptMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return fmt.Errorf("query: attempt id is required")
	}
	return nil
}

type ListDeliveryAttemptsMessage struct {
	Provider string
	Since    time.Time
}

func (ListDeliveryAttemptsMessage) Type() string { return TypeListDeliveryAttempts }

func (m ListDeliveryAttemptsMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	if m.Since.IsZero() {
		return fmt.Errorf("query: window start is required")
	}
	return nil
}

type GetDeadLetterMessage struct {
	DeadLetterID string
}

func (GetDeadLetterMessage) Type() string { return TypeGetDeadLetter }

func (m GetDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.DeadLetterID) == "" {
		return fmt.Errorf("query: dead letter id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Provider string
	Limit    int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetSLAStatusMessage struct {
	Provider string
}

func (GetSLAStatusMessage) Type() string { return TypeGetSLAStatus }

func (m GetSLAStatusMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	return nil
}

type ListBreakerStatesMessage struct{}

func (ListBreakerStatesMessage) Type() string { return TypeListBreakerStates }

func (ListBreakerStatesMessage) Validate() error { return nil }
