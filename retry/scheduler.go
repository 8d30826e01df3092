package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-intake/core"
)

// Scheduler couples the backoff policy with a durable retry queue. It owns
// delay math only; attempt bookkeeping stays with the caller.
type Scheduler struct {
	Backoff *ExponentialBackoff
	Queue   core.RetryQueue
}

func NewScheduler(backoff *ExponentialBackoff, queue core.RetryQueue) *Scheduler {
	if backoff == nil {
		backoff = NewExponentialBackoff(time.Second, 15*time.Minute, 2, time.Second)
	}
	return &Scheduler{Backoff: backoff, Queue: queue}
}

func (s *Scheduler) NextDelay(attempt int) time.Duration {
	if s == nil || s.Backoff == nil {
		return time.Second
	}
	return s.Backoff.Delay(attempt)
}

func (s *Scheduler) Schedule(ctx context.Context, attemptID string, dueAt time.Time) error {
	if s == nil || s.Queue == nil {
		return fmt.Errorf("retry: scheduler queue is not configured")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("retry: attempt id is required")
	}
	return s.Queue.Schedule(ctx, attemptID, dueAt.UTC())
}

func (s *Scheduler) ClaimDue(ctx context.Context, limit int) ([]core.RetryQueueItem, error) {
	if s == nil || s.Queue == nil {
		return nil, fmt.Errorf("retry: scheduler queue is not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	return s.Queue.ClaimDue(ctx, limit)
}

var _ core.RetryScheduler = (*Scheduler)(nil)
