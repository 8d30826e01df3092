package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-intake/core"
)

var (
	_ gocmd.Querier[GetDeliveryAttemptMessage, core.DeliveryAttempt]     = (*GetDeliveryAttemptQuery)(nil)
	_ gocmd.Querier[ListDeliveryAttemptsMessage, []core.DeliveryAttempt] = (*ListDeliveryAttemptsQuery)(nil)
	_ gocmd.Querier[GetDeadLetterMessage, core.DeadLetterRecord]         = (*GetDeadLetterQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.DeadLetterRecord]     = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[GetSLAStatusMessage, core.SLAStatus]                 = (*GetSLAStatusQuery)(nil)
	_ gocmd.Querier[ListBreakerStatesMessage, []core.BreakerSnapshot]    = (*ListBreakerStatesQuery)(nil)
)
