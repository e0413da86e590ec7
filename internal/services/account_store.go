package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openbank/backend/internal/models"
)

// ErrAccountNotFound is returned when no account row exists for an id.
var ErrAccountNotFound = errors.New("account not found")

// AccountService owns the account identity rows on the account service
// database, mapping external ids to generated account numbers.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

func (s *AccountService) Insert(ctx context.Context, a *models.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, account_no, account_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.AccountNo, a.AccountType, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account %s: %w", a.ID, err)
	}
	return nil
}

func (s *AccountService) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_no, account_type, created_at, updated_at
		FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.AccountNo, &a.AccountType, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account %s: %w", id, err)
	}
	return &a, nil
}
