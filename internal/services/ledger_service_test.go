package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var balanceColumns = []string{"account_no", "token", "account_type", "amount", "credit_limit", "version", "created_at", "updated_at"}

func TestLedgerServiceOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, -100000)

	t.Run("creates zero balance", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO balances").
			WithArgs("NL66OPEN0000000000", sqlmock.AnyArg(), "Basic", int64(0), int64(-100000), 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		balance, err := service.Open(context.Background(), "NL66OPEN0000000000", "Basic")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance.Amount)
		assert.Equal(t, int64(-100000), balance.CreditLimit)
		assert.NotEmpty(t, balance.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate account number", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO balances").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := service.Open(context.Background(), "NL66OPEN0000000000", "Basic")
		assert.ErrorIs(t, err, ErrBalanceExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerServiceFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, -100000)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_no, token, account_type, amount, credit_limit, version, created_at, updated_at").
			WithArgs("NL66OPEN0000000000").
			WillReturnRows(sqlmock.NewRows(balanceColumns).
				AddRow("NL66OPEN0000000000", "tok", "Basic", 1500, -100000, 3, now, now))

		balance, err := service.Find(context.Background(), "NL66OPEN0000000000")
		require.NoError(t, err)
		assert.Equal(t, int64(1500), balance.Amount)
		assert.Equal(t, 3, balance.Version)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_no, token, account_type, amount, credit_limit, version, created_at, updated_at").
			WithArgs("NL21OPEN0111111111").
			WillReturnRows(sqlmock.NewRows(balanceColumns))

		_, err := service.Find(context.Background(), "NL21OPEN0111111111")
		assert.ErrorIs(t, err, ErrBalanceNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerServiceApplyDelta(t *testing.T) {
	now := time.Now()

	expectRead := func(mock sqlmock.Sqlmock, amount int64, version int) {
		mock.ExpectQuery("SELECT account_no, token, account_type, amount, credit_limit, version, created_at, updated_at").
			WithArgs("NL66OPEN0000000000").
			WillReturnRows(sqlmock.NewRows(balanceColumns).
				AddRow("NL66OPEN0000000000", "tok", "Basic", amount, int64(-100000), version, now, now))
	}

	t.Run("applies delta with version CAS", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		service := NewLedgerService(db, -100000)

		expectRead(mock, 1000, 3)
		mock.ExpectExec("UPDATE balances SET amount").
			WithArgs(int64(600), sqlmock.AnyArg(), "NL66OPEN0000000000", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		balance, err := service.ApplyDelta(context.Background(), "NL66OPEN0000000000", -400)
		require.NoError(t, err)
		assert.Equal(t, int64(600), balance.Amount)
		assert.Equal(t, 4, balance.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries on lost race", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		service := NewLedgerService(db, -100000)

		expectRead(mock, 1000, 3)
		mock.ExpectExec("UPDATE balances SET amount").
			WithArgs(int64(600), sqlmock.AnyArg(), "NL66OPEN0000000000", 3).
			WillReturnResult(sqlmock.NewResult(0, 0)) // someone else won

		expectRead(mock, 900, 4)
		mock.ExpectExec("UPDATE balances SET amount").
			WithArgs(int64(500), sqlmock.AnyArg(), "NL66OPEN0000000000", 4).
			WillReturnResult(sqlmock.NewResult(0, 1))

		balance, err := service.ApplyDelta(context.Background(), "NL66OPEN0000000000", -400)
		require.NoError(t, err)
		assert.Equal(t, int64(500), balance.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		service := NewLedgerService(db, -100000)

		for i := 0; i < applyDeltaAttempts; i++ {
			expectRead(mock, 1000, 3+i)
			mock.ExpectExec("UPDATE balances SET amount").
				WillReturnResult(sqlmock.NewResult(0, 0))
		}

		_, err = service.ApplyDelta(context.Background(), "NL66OPEN0000000000", -400)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit limit floor", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		service := NewLedgerService(db, -100000)

		expectRead(mock, 1000, 3)

		_, err = service.ApplyDelta(context.Background(), "NL66OPEN0000000000", -200000)
		assert.ErrorIs(t, err, ErrBelowCreditLimit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		service := NewLedgerService(db, -100000)

		mock.ExpectQuery("SELECT account_no, token, account_type, amount, credit_limit, version, created_at, updated_at").
			WithArgs("NL66OPEN0000000000").
			WillReturnRows(sqlmock.NewRows(balanceColumns))

		_, err = service.ApplyDelta(context.Background(), "NL66OPEN0000000000", 100)
		assert.ErrorIs(t, err, ErrBalanceNotFound)
	})
}
