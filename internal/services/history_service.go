package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/models"
)

// HistoryService maintains the append-only transaction history on the
// transaction service, built purely from balance_changed events. Entries
// are never updated or deleted.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// RecordBalanceChange appends one audit entry for a consumed
// balance_changed event. The account type is resolved from the owning user
// when known; external accounts get an empty type.
func (s *HistoryService) RecordBalanceChange(ctx context.Context, ev events.BalanceChanged) (*models.LedgerEntry, error) {
	direction := "CREDIT"
	if ev.ChangedBy < 0 {
		direction = "DEBIT"
	}

	var accountType string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_type FROM users WHERE account_no = $1`, ev.AccountNo).
		Scan(&accountType)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve account type for %s: %w", ev.AccountNo, err)
	}

	entry := &models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountNo:   ev.AccountNo,
		NewBalance:  ev.NewBalance,
		ChangedBy:   ev.ChangedBy,
		AccountType: accountType,
		FromTo:      ev.FromTo,
		Direction:   direction,
		Description: ev.Description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_no, new_balance, changed_by, account_type, from_to, direction, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.AccountNo, entry.NewBalance, entry.ChangedBy, entry.AccountType,
		entry.FromTo, entry.Direction, entry.Description, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction for %s: %w", ev.AccountNo, err)
	}
	return entry, nil
}

// ListByAccount returns the newest entries for one account.
func (s *HistoryService) ListByAccount(ctx context.Context, accountNo string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_no, new_balance, changed_by, account_type, from_to, direction, description, created_at
		FROM transactions WHERE account_no = $1
		ORDER BY created_at DESC LIMIT $2`, accountNo, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", accountNo, err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountNo, &e.NewBalance, &e.ChangedBy, &e.AccountType,
			&e.FromTo, &e.Direction, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
