package models

import "time"

// LedgerEntry is one row of the append-only audit trail, built from
// balance_changed events. ChangedBy is the signed delta in minor units;
// NewBalance is the balance after applying it. Entries are never updated.
type LedgerEntry struct {
	ID          string    `json:"id" db:"id"`
	AccountNo   string    `json:"account_no" db:"account_no"`
	NewBalance  int64     `json:"new_balance" db:"new_balance"`
	ChangedBy   int64     `json:"changed_by" db:"changed_by"`
	AccountType string    `json:"account_type" db:"account_type"`
	FromTo      string    `json:"from_to" db:"from_to"`
	Direction   string    `json:"direction" db:"direction"` // DEBIT or CREDIT
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
