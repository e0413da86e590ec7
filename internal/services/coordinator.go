package services

import (
	"context"
	"errors"
	"log"

	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/iban"
	"github.com/openbank/backend/internal/models"
)

// Saga failure reasons. These travel on *_failed events and are persisted
// verbatim in the outcome records, so they are part of the contract with
// downstream consumers.
const (
	ReasonAccountNoTaken = "generated account no already exists, try again"
	ReasonInvalidFrom    = "from is invalid"
	ReasonSameAccount    = "from and to can't be same for transfer"
	ReasonInsufficient   = "insufficient funds"
)

// EventSink accepts outgoing events for publication. Publish may block for
// backpressure but must preserve call order.
type EventSink interface {
	Publish(e events.Outbound)
}

// LedgerStore is the balance-row dependency of the coordinator.
type LedgerStore interface {
	Open(ctx context.Context, accountNo, accountType string) (*models.Balance, error)
	Find(ctx context.Context, accountNo string) (*models.Balance, error)
	ApplyDelta(ctx context.Context, accountNo string, delta int64) (*models.Balance, error)
}

// SagaRecordStore is the idempotent outcome-record dependency.
type SagaRecordStore interface {
	FindAccountCreation(ctx context.Context, requestID string) (*models.AccountCreationRecord, error)
	SaveAccountCreation(ctx context.Context, rec *models.AccountCreationRecord) (*models.AccountCreationRecord, error)
	FindTransfer(ctx context.Context, requestID string) (*models.TransferRecord, error)
	SaveTransfer(ctx context.Context, rec *models.TransferRecord) (*models.TransferRecord, error)
}

// AccountRecorder persists the identity row created alongside a balance.
type AccountRecorder interface {
	Insert(ctx context.Context, a *models.Account) error
}

// Coordinator executes the account-creation and money-transfer sagas. Each
// handler is invoked once per delivered command under at-least-once
// semantics; the outcome records make redeliveries converge instead of
// re-running side effects. All dependencies are injected at construction.
type Coordinator struct {
	codec    *iban.Codec
	ledger   LedgerStore
	sagas    SagaRecordStore
	accounts AccountRecorder
	sink     EventSink
}

func NewCoordinator(codec *iban.Codec, ledger LedgerStore, sagas SagaRecordStore, accounts AccountRecorder, sink EventSink) *Coordinator {
	return &Coordinator{
		codec:    codec,
		ledger:   ledger,
		sagas:    sagas,
		accounts: accounts,
		sink:     sink,
	}
}

// HandleAccountCreation resolves one confirm_account_creation command. A
// replay of an already-resolved request id is a no-op: no ledger mutation
// and no emission.
func (c *Coordinator) HandleAccountCreation(ctx context.Context, cmd events.ConfirmAccountCreation) error {
	if _, err := c.sagas.FindAccountCreation(ctx, cmd.ID); err == nil {
		log.Printf("[SAGA] Account creation %s already resolved, skipping", cmd.ID)
		return nil
	} else if !errors.Is(err, ErrSagaNotFound) {
		return err
	}

	accountNo := c.codec.Generate()

	rec := &models.AccountCreationRecord{
		RequestID:   cmd.ID,
		AccountType: cmd.AccountType,
	}

	_, err := c.ledger.Find(ctx, accountNo)
	switch {
	case err == nil:
		// Vanishingly unlikely, but surfaced to the caller rather than
		// retried internally.
		rec.Reason = ReasonAccountNoTaken
	case errors.Is(err, ErrBalanceNotFound):
		var balance *models.Balance
		balance, err = c.ledger.Open(ctx, accountNo, cmd.AccountType)
		if errors.Is(err, ErrBalanceExists) {
			rec.Reason = ReasonAccountNoTaken
		} else if err != nil {
			return err
		} else {
			rec.AccountNo = accountNo
			rec.Token = balance.Token
			if err = c.accounts.Insert(ctx, &models.Account{
				ID:          cmd.ID,
				AccountNo:   accountNo,
				AccountType: cmd.AccountType,
			}); err != nil {
				return err
			}
		}
	default:
		return err
	}

	rec, err = c.sagas.SaveAccountCreation(ctx, rec)
	if err != nil {
		return err
	}

	if rec.Failed() {
		c.sink.Publish(events.NewAccountCreationFailed(rec.RequestID, rec.Reason))
	} else {
		c.sink.Publish(events.NewAccountCreationConfirmed(rec.RequestID, rec.AccountNo, rec.Token, rec.AccountType))
	}
	return nil
}

// HandleTransfer resolves one confirm_money_transfer command. The two legs
// are applied as independent single-leg mutations: a leg whose account has
// no balance row is skipped without failing the saga, so a transfer to or
// from an external counterparty still applies the side it can.
func (c *Coordinator) HandleTransfer(ctx context.Context, cmd events.ConfirmMoneyTransfer) error {
	if _, err := c.sagas.FindTransfer(ctx, cmd.ID); err == nil {
		log.Printf("[SAGA] Transfer %s already resolved, skipping", cmd.ID)
		return nil
	} else if !errors.Is(err, ErrSagaNotFound) {
		return err
	}

	var reason string
	switch {
	case !c.codec.ValidTransferSource(cmd.From):
		reason = ReasonInvalidFrom
	case cmd.From == cmd.To:
		reason = ReasonSameAccount
	}

	var fromBalance, toBalance *models.Balance
	if reason == "" {
		if c.codec.Valid(cmd.From) {
			b, err := c.ledger.ApplyDelta(ctx, cmd.From, -cmd.Amount)
			switch {
			case errors.Is(err, ErrBalanceNotFound):
				log.Printf("[SAGA] No balance for from account %s, leg skipped", cmd.From)
			case errors.Is(err, ErrBelowCreditLimit):
				reason = ReasonInsufficient
			case err != nil:
				return err
			default:
				fromBalance = b
			}
		}

		if reason == "" {
			b, err := c.ledger.ApplyDelta(ctx, cmd.To, cmd.Amount)
			switch {
			case errors.Is(err, ErrBalanceNotFound):
				log.Printf("[SAGA] No balance for to account %s, leg skipped", cmd.To)
			case errors.Is(err, ErrBelowCreditLimit):
				reason = ReasonInsufficient
			case err != nil:
				return err
			default:
				toBalance = b
			}
		}

		if reason != "" && fromBalance != nil {
			// The debit leg already landed but the saga is failing:
			// compensate so a failed outcome leaves no net mutation.
			if _, err := c.ledger.ApplyDelta(ctx, cmd.From, cmd.Amount); err != nil {
				return err
			}
			fromBalance = nil
		}
	}

	rec, err := c.sagas.SaveTransfer(ctx, &models.TransferRecord{
		RequestID: cmd.ID,
		Reason:    reason,
	})
	if err != nil {
		return err
	}

	if rec.Failed() {
		c.sink.Publish(events.NewMoneyTransferFailed(rec.RequestID, rec.Reason))
	} else {
		c.sink.Publish(events.NewMoneyTransferConfirmed(rec.RequestID))
	}

	if fromBalance != nil {
		c.sink.Publish(events.NewBalanceChanged(fromBalance.AccountNo, fromBalance.Amount, -cmd.Amount, cmd.To, cmd.Description))
	}
	if toBalance != nil {
		c.sink.Publish(events.NewBalanceChanged(toBalance.AccountNo, toBalance.Amount, cmd.Amount, cmd.From, cmd.Description))
	}
	return nil
}
