package models

import (
	"time"
)

// AccountCreationRecord is the durable outcome of one account-creation saga,
// keyed by the originating request id. An empty Reason means success; a
// non-empty Reason means failure, in which case AccountNo is empty. Rows are
// written at most once and never updated.
type AccountCreationRecord struct {
	RequestID   string    `json:"request_id" db:"request_id"`
	AccountNo   string    `json:"account_no" db:"account_no"`
	Token       string    `json:"token" db:"token"`
	AccountType string    `json:"account_type" db:"account_type"`
	Reason      string    `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Failed reports whether the saga resolved with a failure reason.
func (r *AccountCreationRecord) Failed() bool {
	return r.Reason != ""
}

// TransferRecord is the durable outcome of one money-transfer saga. An empty
// Reason means both legs that had a balance row were applied; a non-empty
// Reason means no ledger mutation occurred.
type TransferRecord struct {
	RequestID string    `json:"request_id" db:"request_id"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (r *TransferRecord) Failed() bool {
	return r.Reason != ""
}
