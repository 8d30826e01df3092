package query

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-intake/core"
)

type DeliveryAttemptReader interface {
	GetByID(ctx context.Context, id string) (core.DeliveryAttempt, error)
	QueryByProviderAndWindow(ctx context.Context, provider string, since time.Time) ([]core.DeliveryAttempt, error)
}

type DeadLetterReader interface {
	Get(ctx context.Context, id string) (core.DeadLetterRecord, error)
	ListByProvider(ctx context.Context, provider string, limit int) ([]core.DeadLetterRecord, error)
}

type SLAStatusReader interface {
	EvaluateProvider(ctx context.Context, provider string) (core.SLAStatus, error)
}

type BreakerStateReader interface {
	Snapshot() []core.BreakerSnapshot
}

type GetDeliveryAttemptQuery struct {
	reader DeliveryAttemptReader
}

func NewGetDeliveryAttemptQuery(reader DeliveryAttemptReader) *GetDeliveryAttemptQuery {
	return &GetDeliveryAttemptQuery{reader: reader}
}

func (q *GetDeliveryAttemptQuery) Query(ctx context.Context, msg GetDeliveryAttemptMessage) (core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryAttempt{}, queryDependencyError("query: delivery attempt reader is required")
	}
	return q.reader.GetByID(ctx, strings.TrimSpace(msg.AttemptID))
}

type ListDeliveryAttemptsQuery struct {
	reader DeliveryAttemptReader
}

func NewListDeliveryAttemptsQuery(reader DeliveryAttemptReader) *ListDeliveryAttemptsQuery {
	return &ListDeliveryAttemptsQuery{reader: reader}
}

func (q *ListDeliveryAttemptsQuery) Query(
	ctx context.Context,
	msg ListDeliveryAttemptsMessage,
) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery attempt reader is required")
	}
	return q.reader.QueryByProviderAndWindow(ctx, msg.Provider, msg.Since)
}

type GetDeadLetterQuery struct {
	reader DeadLetterReader
}

func NewGetDeadLetterQuery(reader DeadLetterReader) *GetDeadLetterQuery {
	return &GetDeadLetterQuery{reader: reader}
}

func (q *GetDeadLetterQuery) Query(ctx context.Context, msg GetDeadLetterMessage) (core.DeadLetterRecord, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterRecord{}, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.DeadLetterID))
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(
	ctx context.Context,
	msg ListDeadLettersMessage,
) ([]core.DeadLetterRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListByProvider(ctx, msg.Provider, msg.Limit)
}

type GetSLAStatusQuery struct {
	reader SLAStatusReader
}

func NewGetSLAStatusQuery(reader SLAStatusReader) *GetSLAStatusQuery {
	return &GetSLAStatusQuery{reader: reader}
}

func (q *GetSLAStatusQuery) Query(ctx context.Context, msg GetSLAStatusMessage) (core.SLAStatus, error) {
	if q == nil || q.reader == nil {
		return core.SLAStatus{}, queryDependencyError("query: sla status reader is required")
	}
	return q.reader.EvaluateProvider(ctx, msg.Provider)
}

type ListBreakerStatesQuery struct {
	reader BreakerStateReader
}

func NewListBreakerStatesQuery(reader BreakerStateReader) *ListBreakerStatesQuery {
	return &ListBreakerStatesQuery{reader: reader}
}

func (q *ListBreakerStatesQuery) Query(
	_ context.Context,
	_ ListBreakerStatesMessage,
) ([]core.BreakerSnapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: breaker state reader is required")
	}
	return q.reader.Snapshot(), nil
}
