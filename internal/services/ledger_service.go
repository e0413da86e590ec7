package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/openbank/backend/internal/models"
)

var (
	// ErrBalanceNotFound is returned when no balance row exists for a key.
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrBalanceExists is returned by Open when the account number is taken.
	ErrBalanceExists = errors.New("balance already exists")
	// ErrBelowCreditLimit is returned when a delta would push the balance
	// under its credit limit.
	ErrBelowCreditLimit = errors.New("balance would fall below credit limit")
	// ErrVersionConflict is returned when the optimistic write keeps losing
	// against concurrent updates.
	ErrVersionConflict = errors.New("balance version conflict")
)

const uniqueViolation = "23505"

// applyDeltaAttempts bounds the optimistic-locking retry loop.
const applyDeltaAttempts = 3

// LedgerService owns the balance rows. All mutation goes through Open and
// ApplyDelta; nothing else writes the balances table.
type LedgerService struct {
	db          *sql.DB
	creditLimit int64
}

// NewLedgerService creates the ledger store. creditLimit is applied to
// every newly opened balance (how far negative an amount may go).
func NewLedgerService(db *sql.DB, creditLimit int64) *LedgerService {
	return &LedgerService{db: db, creditLimit: creditLimit}
}

// Open creates a zero-amount balance with a fresh token for the account
// number. Returns ErrBalanceExists if a row is already present.
func (s *LedgerService) Open(ctx context.Context, accountNo, accountType string) (*models.Balance, error) {
	now := time.Now().UTC()
	b := &models.Balance{
		AccountNo:   accountNo,
		Token:       uuid.NewString(),
		AccountType: accountType,
		Amount:      0,
		CreditLimit: s.creditLimit,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (account_no, token, account_type, amount, credit_limit, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.AccountNo, b.Token, b.AccountType, b.Amount, b.CreditLimit, b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrBalanceExists
		}
		return nil, fmt.Errorf("failed to open balance %s: %w", accountNo, err)
	}
	return b, nil
}

// Find returns the balance for the exact account number, or
// ErrBalanceNotFound.
func (s *LedgerService) Find(ctx context.Context, accountNo string) (*models.Balance, error) {
	var b models.Balance
	err := s.db.QueryRowContext(ctx, `
		SELECT account_no, token, account_type, amount, credit_limit, version, created_at, updated_at
		FROM balances WHERE account_no = $1`, accountNo).
		Scan(&b.AccountNo, &b.Token, &b.AccountType, &b.Amount, &b.CreditLimit, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find balance %s: %w", accountNo, err)
	}
	return &b, nil
}

// ApplyDelta adds delta to one balance as a standalone read-modify-write.
// The write is guarded by a version compare-and-swap so concurrent legs on
// the same account cannot lose updates; a lost race is retried against the
// fresh row.
func (s *LedgerService) ApplyDelta(ctx context.Context, accountNo string, delta int64) (*models.Balance, error) {
	for attempt := 0; attempt < applyDeltaAttempts; attempt++ {
		b, err := s.Find(ctx, accountNo)
		if err != nil {
			return nil, err
		}

		newAmount := b.Amount + delta
		if newAmount < b.CreditLimit {
			return nil, ErrBelowCreditLimit
		}

		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			UPDATE balances SET amount = $1, version = version + 1, updated_at = $2
			WHERE account_no = $3 AND version = $4`,
			newAmount, now, accountNo, b.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to update balance %s: %w", accountNo, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update balance %s: %w", accountNo, err)
		}
		if affected == 0 {
			// Lost the race; re-read and try again.
			continue
		}

		b.Amount = newAmount
		b.Version++
		b.UpdatedAt = now
		return b, nil
	}
	return nil, ErrVersionConflict
}
