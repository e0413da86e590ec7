package models

import (
	"time"
)

// Account links an external identity (the session/user id supplied with the
// creation command) to its generated account number. Written exactly once
// per successful account-creation saga.
type Account struct {
	ID          string    `json:"id" db:"id"`
	AccountNo   string    `json:"account_no" db:"account_no"`
	AccountType string    `json:"account_type" db:"account_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Balance is the ledger row for one account. Amount and CreditLimit are in
// minor units (cents); CreditLimit bounds how far negative Amount may go.
// Version backs the optimistic-locking read-modify-write in the ledger store.
type Balance struct {
	AccountNo   string    `json:"account_no" db:"account_no"`
	Token       string    `json:"token" db:"token"`
	AccountType string    `json:"account_type" db:"account_type"`
	Amount      int64     `json:"amount" db:"amount"`
	CreditLimit int64     `json:"credit_limit" db:"credit_limit"`
	Version     int       `json:"version" db:"version"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
