package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/middleware"
	"github.com/openbank/backend/internal/models"
	"github.com/openbank/backend/internal/services"
)

type fakeDirectory struct {
	users map[string]*models.User
}

func (f *fakeDirectory) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return u, nil
}

type fakeLister struct {
	entries []models.LedgerEntry
}

func (f *fakeLister) ListByAccount(ctx context.Context, accountNo string, limit int) ([]models.LedgerEntry, error) {
	return f.entries, nil
}

type recordingSink struct {
	published []events.Outbound
}

func (r *recordingSink) Publish(e events.Outbound) {
	r.published = append(r.published, e)
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	viper.Set("jwt.secret_key", "test-secret")
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestHandler(sink *recordingSink) (*TransferHandler, *fakeDirectory) {
	dir := &fakeDirectory{users: map[string]*models.User{
		"user-1": {
			ID:          "user-1",
			Username:    "alice",
			AccountNo:   "NL66OPEN0000000000",
			AccountType: "Basic",
			Token:       "tok-1",
		},
		"user-2": {ID: "user-2", Username: "bob"},
	}}
	return NewTransferHandler(dir, &fakeLister{}, sink), dir
}

func TestSubmitTransfer(t *testing.T) {
	sink := &recordingSink{}
	handler, _ := newTestHandler(sink)

	body := `{"to":"NL21OPEN0111111111","amount":"100.00","description":"rent"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rec := httptest.NewRecorder()

	middleware.AuthMiddleware(http.HandlerFunc(handler.SubmitTransfer)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.published, 1)

	cmd := sink.published[0]
	assert.Equal(t, events.TopicConfirmMoneyTransfer, cmd.Topic)
	assert.Equal(t, "NL66OPEN0000000000", cmd.Fields["from"])
	assert.Equal(t, "NL21OPEN0111111111", cmd.Fields["to"])
	assert.Equal(t, "10000", cmd.Fields["amount"])
	assert.Equal(t, "tok-1", cmd.Fields["token"])
	assert.Equal(t, cmd.Fields["id"], cmd.Key)
}

func TestSubmitTransferRequiresAuth(t *testing.T) {
	sink := &recordingSink{}
	handler, _ := newTestHandler(sink)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	middleware.AuthMiddleware(http.HandlerFunc(handler.SubmitTransfer)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.published)
}

func TestSubmitTransferWithoutOpenAccount(t *testing.T) {
	sink := &recordingSink{}
	handler, _ := newTestHandler(sink)

	body := `{"to":"NL21OPEN0111111111","amount":"1.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "user-2"))
	rec := httptest.NewRecorder()

	middleware.AuthMiddleware(http.HandlerFunc(handler.SubmitTransfer)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, sink.published)
}

func TestSubmitTransferRejectsBadAmounts(t *testing.T) {
	for _, amount := range []string{"0", "-5", "1.005", "ten", ""} {
		t.Run(amount, func(t *testing.T) {
			sink := &recordingSink{}
			handler, _ := newTestHandler(sink)

			body := `{"to":"NL21OPEN0111111111","amount":"` + amount + `"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
			req.Header.Set("Authorization", bearerToken(t, "user-1"))
			rec := httptest.NewRecorder()

			middleware.AuthMiddleware(http.HandlerFunc(handler.SubmitTransfer)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, sink.published)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100.00", want: 10000},
		{in: "0.01", want: 1},
		{in: "250", want: 25000},
		{in: "10.5", want: 1050},
		{in: "1.005", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseAmount(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
