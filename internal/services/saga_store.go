package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openbank/backend/internal/models"
)

// ErrSagaNotFound is returned when no outcome record exists for a request id.
var ErrSagaNotFound = errors.New("saga record not found")

// SagaStore owns the idempotent outcome records. Records are keyed by the
// originating request id, inserted at most once and never updated: once a
// saga's outcome is persisted it is never recomputed.
type SagaStore struct {
	db *sql.DB
}

func NewSagaStore(db *sql.DB) *SagaStore {
	return &SagaStore{db: db}
}

func (s *SagaStore) FindAccountCreation(ctx context.Context, requestID string) (*models.AccountCreationRecord, error) {
	var rec models.AccountCreationRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, account_no, token, account_type, COALESCE(reason, ''), created_at
		FROM account_creation_records WHERE request_id = $1`, requestID).
		Scan(&rec.RequestID, &rec.AccountNo, &rec.Token, &rec.AccountType, &rec.Reason, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account creation record %s: %w", requestID, err)
	}
	return &rec, nil
}

// SaveAccountCreation persists the outcome for a request id. If a record
// already exists (a concurrent redelivery won the insert) the stored record
// wins and is returned instead, so every caller converges on one outcome.
func (s *SagaStore) SaveAccountCreation(ctx context.Context, rec *models.AccountCreationRecord) (*models.AccountCreationRecord, error) {
	rec.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO account_creation_records (request_id, account_no, token, account_type, reason, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (request_id) DO NOTHING`,
		rec.RequestID, rec.AccountNo, rec.Token, rec.AccountType, rec.Reason, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save account creation record %s: %w", rec.RequestID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to save account creation record %s: %w", rec.RequestID, err)
	}
	if affected == 0 {
		return s.FindAccountCreation(ctx, rec.RequestID)
	}
	return rec, nil
}

func (s *SagaStore) FindTransfer(ctx context.Context, requestID string) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, COALESCE(reason, ''), created_at
		FROM transfer_records WHERE request_id = $1`, requestID).
		Scan(&rec.RequestID, &rec.Reason, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transfer record %s: %w", requestID, err)
	}
	return &rec, nil
}

// SaveTransfer persists the outcome for a transfer request id, with the
// same first-insert-wins semantics as SaveAccountCreation.
func (s *SagaStore) SaveTransfer(ctx context.Context, rec *models.TransferRecord) (*models.TransferRecord, error) {
	rec.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transfer_records (request_id, reason, created_at)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (request_id) DO NOTHING`,
		rec.RequestID, rec.Reason, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save transfer record %s: %w", rec.RequestID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to save transfer record %s: %w", rec.RequestID, err)
	}
	if affected == 0 {
		return s.FindTransfer(ctx, rec.RequestID)
	}
	return rec, nil
}
