package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-intake/core"
)

type SubmitEventCommand struct {
	service core.IntakeService
}

func NewSubmitEventCommand(service core.IntakeService) *SubmitEventCommand {
	return &SubmitEventCommand{service: service}
}

func (c *SubmitEventCommand) Execute(ctx context.Context, msg SubmitEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.Submit(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessDueCommand struct {
	service core.IntakeService
}

func NewProcessDueCommand(service core.IntakeService) *ProcessDueCommand {
	return &ProcessDueCommand{service: service}
}

func (c *ProcessDueCommand) Execute(ctx context.Context, msg ProcessDueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.ProcessDue(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayDeadLetterCommand struct {
	service core.IntakeService
}

func NewReplayDeadLetterCommand(service core.IntakeService) *ReplayDeadLetterCommand {
	return &ReplayDeadLetterCommand{service: service}
}

func (c *ReplayDeadLetterCommand) Execute(ctx context.Context, msg ReplayDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.ReplayDeadLetter(ctx, msg.DeadLetterID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
