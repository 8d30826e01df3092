package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-intake/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RetryQueueStore is the durable retry queue. ClaimDue deletes due rows
// inside a single transaction so each entry is handed to exactly one poller
// even with concurrent workers, and completed retries leave nothing behind.
type RetryQueueStore struct {
	db   *bun.DB
	repo repository.Repository[*retryQueueRecord]
}

func NewRetryQueueStore(db *bun.DB) (*RetryQueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*retryQueueRecord](db, retryQueueHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid retry queue repository wiring: %w", err)
		}
	}
	return &RetryQueueStore{db: db, repo: repo}, nil
}

func (s *RetryQueueStore) Schedule(ctx context.Context, attemptID string, dueAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: retry queue store is not configured")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}

	now := time.Now().UTC()
	record := &retryQueueRecord{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		DueAt:     dueAt.UTC(),
		Status:    retryQueueStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			// Rescheduling an attempt moves its existing entry.
			_, updateErr := s.db.NewUpdate().
				Model((*retryQueueRecord)(nil)).
				Set("due_at = ?", dueAt.UTC()).
				Set("status = ?", retryQueueStatusPending).
				Set("updated_at = ?", now).
				Where("attempt_id = ?", attemptID).
				Exec(ctx)
			return updateErr
		}
		return err
	}
	return nil
}

func (s *RetryQueueStore) ClaimDue(ctx context.Context, limit int) ([]core.RetryQueueItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: retry queue store is not configured")
	}
	if limit <= 0 {
		limit = 10
	}

	now := time.Now().UTC()
	var records []retryQueueRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
DELETE FROM webhook_retry_queue
WHERE id IN (
	SELECT id
	FROM webhook_retry_queue
	WHERE status = ?
	  AND due_at <= ?
	ORDER BY due_at ASC
	LIMIT ?
)
  AND status = ?
RETURNING
	id,
	attempt_id,
	due_at,
	status,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			retryQueueStatusPending,
			now,
			limit,
			retryQueueStatusPending,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	items := make([]core.RetryQueueItem, 0, len(records))
	for _, record := range records {
		items = append(items, core.RetryQueueItem{
			AttemptID: record.AttemptID,
			DueAt:     record.DueAt,
		})
	}
	return items, nil
}

var _ core.RetryQueue = (*RetryQueueStore)(nil)
