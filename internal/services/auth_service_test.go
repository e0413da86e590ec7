package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbank/backend/internal/events"
)

type captureSink struct {
	published []events.Outbound
}

func (c *captureSink) Publish(e events.Outbound) {
	c.published = append(c.published, e)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash := hashPassword("s3cret-pass")
	assert.True(t, comparePassword(hash, "s3cret-pass"))
	assert.False(t, comparePassword(hash, "wrong-pass"))
	assert.False(t, comparePassword("garbage", "s3cret-pass"))

	// Fresh salt per hash.
	assert.NotEqual(t, hash, hashPassword("s3cret-pass"))
}

func TestLoginRegistersNewUserAndRequestsAccount(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 1)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userColumns := []string{"id", "username", "account_no", "account_type", "token", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, username, account_no, account_type, token").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "alice", sqlmock.AnyArg(), "Basic", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := &captureSink{}
	service := NewAuthService(db, sink)

	body := `{"username":"alice","password":"s3cret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()

	service.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.published, 1)
	assert.Equal(t, events.TopicConfirmAccountCreation, sink.published[0].Topic)
	assert.Equal(t, "Basic", sink.published[0].Fields["account_type"])
	assert.NotEmpty(t, sink.published[0].Key)
	assert.Contains(t, rec.Body.String(), "token")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userColumns := []string{"id", "username", "account_no", "account_type", "token", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, username, account_no, account_type, token").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("user-1", "alice", "", "Basic", "", time.Now(), time.Now()))

	sink := &captureSink{}
	service := NewAuthService(db, sink)

	body := `{"username":"alice","password":"s3cret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	service.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, sink.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterCreatesUserAndRequestsAccount(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 1)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userColumns := []string{"id", "username", "account_no", "account_type", "token", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, username, account_no, account_type, token").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "bob", sqlmock.AnyArg(), "Premium", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := &captureSink{}
	service := NewAuthService(db, sink)

	body := `{"username":"bob","password":"s3cret-pass","accountType":"Premium"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	service.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, sink.published, 1)
	assert.Equal(t, events.TopicConfirmAccountCreation, sink.published[0].Topic)
	assert.Equal(t, "Premium", sink.published[0].Fields["account_type"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userColumns := []string{"id", "username", "account_no", "account_type", "token", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, username, account_no, account_type, token").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("user-1", "alice", "NL66OPEN0000000000", "Basic", "tok", time.Now(), time.Now()))

	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hashPassword("right-pass")))

	sink := &captureSink{}
	service := NewAuthService(db, sink)

	body := `{"username":"alice","password":"wrong-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()

	service.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAccountDetails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users SET account_no").
		WithArgs("NL66OPEN0000000000", "tok", "Basic", sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	service := NewAuthService(db, &captureSink{})
	err = service.SetAccountDetails(context.Background(), "user-1", "NL66OPEN0000000000", "tok", "Basic")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
