package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SubmitEventMessage]      = (*SubmitEventCommand)(nil)
	_ gocmd.Commander[ProcessDueMessage]       = (*ProcessDueCommand)(nil)
	_ gocmd.Commander[ReplayDeadLetterMessage] = (*ReplayDeadLetterCommand)(nil)
)
