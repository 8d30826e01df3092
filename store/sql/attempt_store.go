package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-intake/core"
	"github.com/uptrace/bun"
)

// DeliveryAttemptStore persists delivery attempts in SQL. It is a plain
// record of truth; lifecycle decisions live with the coordinator.
type DeliveryAttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewDeliveryAttemptStore(db *bun.DB) (*DeliveryAttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery attempt repository wiring: %w", err)
		}
	}
	return &DeliveryAttemptStore{db: db, repo: repo}, nil
}

func (s *DeliveryAttemptStore) Create(ctx context.Context, attempt *core.DeliveryAttempt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	if attempt == nil || strings.TrimSpace(attempt.ID) == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}

	record := attemptToRecord(attempt, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: delivery attempt %q already exists", attempt.ID)
		}
		return err
	}
	return nil
}

func (s *DeliveryAttemptStore) Update(ctx context.Context, attempt *core.DeliveryAttempt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	if attempt == nil || strings.TrimSpace(attempt.ID) == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}

	record := attemptToRecord(attempt, time.Now().UTC())
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("sqlstore: delivery attempt %q not found", attempt.ID)
	}
	return nil
}

func (s *DeliveryAttemptStore) GetByID(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt id is required")
	}

	record := &deliveryAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: delivery attempt %q not found", id)
		}
		return core.DeliveryAttempt{}, err
	}
	return attemptToDomain(record), nil
}

func (s *DeliveryAttemptStore) QueryByProviderAndWindow(
	ctx context.Context,
	provider string,
	since time.Time,
) ([]core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return nil, fmt.Errorf("sqlstore: provider is required")
	}

	var records []deliveryAttemptRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	attempts := make([]core.DeliveryAttempt, 0, len(records))
	for i := range records {
		attempts = append(attempts, attemptToDomain(&records[i]))
	}
	return attempts, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.DeliveryAttemptStore = (*DeliveryAttemptStore)(nil)
