package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-intake/core"
	"github.com/uptrace/bun"
)

type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterRecord](db, deadLetterHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

func (s *DeadLetterStore) Append(ctx context.Context, record core.DeadLetterRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("sqlstore: dead letter id is required")
	}

	row := &deadLetterRecord{
		ID:           record.ID,
		AttemptID:    record.AttemptID,
		Provider:     record.Provider,
		EventKind:    record.EventKind,
		Payload:      append([]byte(nil), record.Payload...),
		AttemptCount: record.AttemptCount,
		LastError:    record.LastError,
		FailureLog:   append([]core.AttemptFailure{}, record.FailureLog...),
		CreatedAt:    record.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: dead letter %q already exists", record.ID)
		}
		return err
	}
	return nil
}

func (s *DeadLetterStore) Get(ctx context.Context, id string) (core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter id is required")
	}

	record := &deadLetterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.DeadLetterRecord{}, fmt.Errorf("sqlstore: dead letter %q not found", id)
		}
		return core.DeadLetterRecord{}, err
	}
	return deadLetterToDomain(record), nil
}

func (s *DeadLetterStore) ListByProvider(ctx context.Context, provider string, limit int) ([]core.DeadLetterRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return nil, fmt.Errorf("sqlstore: provider is required")
	}
	if limit <= 0 {
		limit = 50
	}

	var records []deadLetterRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.provider = ?", provider).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]core.DeadLetterRecord, 0, len(records))
	for i := range records {
		result = append(result, deadLetterToDomain(&records[i]))
	}
	return result, nil
}

var _ core.DeadLetterStore = (*DeadLetterStore)(nil)
