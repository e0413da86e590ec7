// Package events defines the topics, payloads and wire codec of the event
// bus shared by the account and transaction services. Payloads travel as
// flat string field maps; every event carries a partitioning key (the
// request id for saga outcomes, the account number for balance changes).
package events

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Command topics, consumed by the account service.
const (
	TopicConfirmAccountCreation = "confirm_account_creation"
	TopicConfirmMoneyTransfer   = "confirm_money_transfer"
)

// Result and side-effect topics, produced by the account service and
// consumed by the transaction service.
const (
	TopicAccountCreationConfirmed = "account_creation_confirmed"
	TopicAccountCreationFailed    = "account_creation_failed"
	TopicMoneyTransferConfirmed   = "money_transfer_confirmed"
	TopicMoneyTransferFailed      = "money_transfer_failed"
	TopicBalanceChanged           = "balance_changed"
)

// DecodeError marks a payload whose shape does not match the topic schema.
// Schema validation is supposed to happen at serialization time, so a shape
// mismatch indicates version skew between deployments and is treated as
// fatal by consumers, never as a recoverable runtime condition.
type DecodeError struct {
	Topic string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: field %q: %v", e.Topic, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Outbound describes one event to publish: the topic, the partitioning key
// and the payload fields.
type Outbound struct {
	Topic  string
	Key    string
	Fields map[string]string
}

// ConfirmAccountCreation asks the account service to open an account for
// the given identity. ID doubles as the saga's idempotency key.
type ConfirmAccountCreation struct {
	ID          string `validate:"required"`
	AccountType string `validate:"required"`
}

// ConfirmMoneyTransfer asks the account service to move Amount minor units
// from From to To. ID doubles as the saga's idempotency key; Token is the
// opaque credential of the initiating account, passed through unverified.
type ConfirmMoneyTransfer struct {
	ID          string `validate:"required"`
	Token       string
	Amount      int64
	From        string `validate:"required"`
	To          string `validate:"required"`
	Description string
}

// AccountCreationConfirmed reports a successfully opened account.
type AccountCreationConfirmed struct {
	ID          string `validate:"required"`
	AccountNo   string `validate:"required"`
	Token       string
	AccountType string
}

type AccountCreationFailed struct {
	ID     string `validate:"required"`
	Reason string `validate:"required"`
}

type MoneyTransferConfirmed struct {
	ID string `validate:"required"`
}

type MoneyTransferFailed struct {
	ID     string `validate:"required"`
	Reason string `validate:"required"`
}

// BalanceChanged reports one applied transfer leg: the account touched, its
// resulting balance, the signed delta and the counterparty.
type BalanceChanged struct {
	AccountNo   string `validate:"required"`
	NewBalance  int64
	ChangedBy   int64
	FromTo      string
	Description string
}

var validate = validator.New()

func DecodeConfirmAccountCreation(values map[string]interface{}) (ConfirmAccountCreation, error) {
	const topic = TopicConfirmAccountCreation
	var cmd ConfirmAccountCreation
	var err error
	if cmd.ID, err = stringField(topic, values, "id"); err != nil {
		return cmd, err
	}
	if cmd.AccountType, err = stringField(topic, values, "account_type"); err != nil {
		return cmd, err
	}
	return cmd, checkShape(topic, &cmd)
}

func DecodeConfirmMoneyTransfer(values map[string]interface{}) (ConfirmMoneyTransfer, error) {
	const topic = TopicConfirmMoneyTransfer
	var cmd ConfirmMoneyTransfer
	var err error
	if cmd.ID, err = stringField(topic, values, "id"); err != nil {
		return cmd, err
	}
	if cmd.Token, err = stringField(topic, values, "token"); err != nil {
		return cmd, err
	}
	if cmd.Amount, err = int64Field(topic, values, "amount"); err != nil {
		return cmd, err
	}
	if cmd.From, err = stringField(topic, values, "from"); err != nil {
		return cmd, err
	}
	if cmd.To, err = stringField(topic, values, "to"); err != nil {
		return cmd, err
	}
	if cmd.Description, err = stringField(topic, values, "description"); err != nil {
		return cmd, err
	}
	return cmd, checkShape(topic, &cmd)
}

func DecodeAccountCreationConfirmed(values map[string]interface{}) (AccountCreationConfirmed, error) {
	const topic = TopicAccountCreationConfirmed
	var ev AccountCreationConfirmed
	var err error
	if ev.ID, err = stringField(topic, values, "id"); err != nil {
		return ev, err
	}
	if ev.AccountNo, err = stringField(topic, values, "account_no"); err != nil {
		return ev, err
	}
	if ev.Token, err = stringField(topic, values, "token"); err != nil {
		return ev, err
	}
	if ev.AccountType, err = stringField(topic, values, "account_type"); err != nil {
		return ev, err
	}
	return ev, checkShape(topic, &ev)
}

func DecodeAccountCreationFailed(values map[string]interface{}) (AccountCreationFailed, error) {
	const topic = TopicAccountCreationFailed
	var ev AccountCreationFailed
	var err error
	if ev.ID, err = stringField(topic, values, "id"); err != nil {
		return ev, err
	}
	if ev.Reason, err = stringField(topic, values, "reason"); err != nil {
		return ev, err
	}
	return ev, checkShape(topic, &ev)
}

func DecodeMoneyTransferConfirmed(values map[string]interface{}) (MoneyTransferConfirmed, error) {
	const topic = TopicMoneyTransferConfirmed
	var ev MoneyTransferConfirmed
	var err error
	if ev.ID, err = stringField(topic, values, "id"); err != nil {
		return ev, err
	}
	return ev, checkShape(topic, &ev)
}

func DecodeMoneyTransferFailed(values map[string]interface{}) (MoneyTransferFailed, error) {
	const topic = TopicMoneyTransferFailed
	var ev MoneyTransferFailed
	var err error
	if ev.ID, err = stringField(topic, values, "id"); err != nil {
		return ev, err
	}
	if ev.Reason, err = stringField(topic, values, "reason"); err != nil {
		return ev, err
	}
	return ev, checkShape(topic, &ev)
}

func DecodeBalanceChanged(values map[string]interface{}) (BalanceChanged, error) {
	const topic = TopicBalanceChanged
	var ev BalanceChanged
	var err error
	if ev.AccountNo, err = stringField(topic, values, "account_no"); err != nil {
		return ev, err
	}
	if ev.NewBalance, err = int64Field(topic, values, "new_balance"); err != nil {
		return ev, err
	}
	if ev.ChangedBy, err = int64Field(topic, values, "changed_by"); err != nil {
		return ev, err
	}
	if ev.FromTo, err = stringField(topic, values, "from_to"); err != nil {
		return ev, err
	}
	if ev.Description, err = stringField(topic, values, "description"); err != nil {
		return ev, err
	}
	return ev, checkShape(topic, &ev)
}

// Outbound constructors. Field names are the wire contract shared with the
// consuming side; changing one is a breaking schema change.

func NewConfirmAccountCreation(id, accountType string) Outbound {
	return Outbound{
		Topic: TopicConfirmAccountCreation,
		Key:   id,
		Fields: map[string]string{
			"id":           id,
			"account_type": accountType,
		},
	}
}

func NewConfirmMoneyTransfer(cmd ConfirmMoneyTransfer) Outbound {
	return Outbound{
		Topic: TopicConfirmMoneyTransfer,
		Key:   cmd.ID,
		Fields: map[string]string{
			"id":          cmd.ID,
			"token":       cmd.Token,
			"amount":      strconv.FormatInt(cmd.Amount, 10),
			"from":        cmd.From,
			"to":          cmd.To,
			"description": cmd.Description,
		},
	}
}

func NewAccountCreationConfirmed(id, accountNo, token, accountType string) Outbound {
	return Outbound{
		Topic: TopicAccountCreationConfirmed,
		Key:   id,
		Fields: map[string]string{
			"id":           id,
			"account_no":   accountNo,
			"token":        token,
			"account_type": accountType,
		},
	}
}

func NewAccountCreationFailed(id, reason string) Outbound {
	return Outbound{
		Topic: TopicAccountCreationFailed,
		Key:   id,
		Fields: map[string]string{
			"id":     id,
			"reason": reason,
		},
	}
}

func NewMoneyTransferConfirmed(id string) Outbound {
	return Outbound{
		Topic:  TopicMoneyTransferConfirmed,
		Key:    id,
		Fields: map[string]string{"id": id},
	}
}

func NewMoneyTransferFailed(id, reason string) Outbound {
	return Outbound{
		Topic: TopicMoneyTransferFailed,
		Key:   id,
		Fields: map[string]string{
			"id":     id,
			"reason": reason,
		},
	}
}

func NewBalanceChanged(accountNo string, newBalance, changedBy int64, fromTo, description string) Outbound {
	return Outbound{
		Topic: TopicBalanceChanged,
		Key:   accountNo,
		Fields: map[string]string{
			"account_no":  accountNo,
			"new_balance": strconv.FormatInt(newBalance, 10),
			"changed_by":  strconv.FormatInt(changedBy, 10),
			"from_to":     fromTo,
			"description": description,
		},
	}
}

func stringField(topic string, values map[string]interface{}, field string) (string, error) {
	v, ok := values[field]
	if !ok {
		return "", &DecodeError{Topic: topic, Field: field, Err: fmt.Errorf("missing")}
	}
	s, ok := v.(string)
	if !ok {
		return "", &DecodeError{Topic: topic, Field: field, Err: fmt.Errorf("not a string: %T", v)}
	}
	return s, nil
}

func int64Field(topic string, values map[string]interface{}, field string) (int64, error) {
	s, err := stringField(topic, values, field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &DecodeError{Topic: topic, Field: field, Err: err}
	}
	return n, nil
}

func checkShape(topic string, payload interface{}) error {
	if err := validate.Struct(payload); err != nil {
		return &DecodeError{Topic: topic, Field: firstBadField(err), Err: err}
	}
	return nil
}

func firstBadField(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
