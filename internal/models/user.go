package models

import "time"

// User is a front-door session identity on the transaction service. The
// account fields stay empty until the account-creation saga confirms; Token
// is the opaque credential passed through on transfer commands.
type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	AccountNo   string    `json:"account_no" db:"account_no"`
	AccountType string    `json:"account_type" db:"account_type"`
	Token       string    `json:"-" db:"token"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
