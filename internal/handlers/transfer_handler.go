package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/middleware"
	"github.com/openbank/backend/internal/models"
	"github.com/openbank/backend/internal/services"
)

// UserDirectory resolves the authenticated session user.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// TransactionLister reads the append-only history.
type TransactionLister interface {
	ListByAccount(ctx context.Context, accountNo string, limit int) ([]models.LedgerEntry, error)
}

// TransferHandler is the money-movement front door. It never talks to the
// ledger: submitting a transfer only enqueues a confirm_money_transfer
// command, and the caller learns the outcome from the asynchronous
// money_transfer_confirmed/_failed events.
type TransferHandler struct {
	users     UserDirectory
	history   TransactionLister
	sink      services.EventSink
	validator *services.ValidationHelper
}

func NewTransferHandler(users UserDirectory, history TransactionLister, sink services.EventSink) *TransferHandler {
	return &TransferHandler{
		users:     users,
		history:   history,
		sink:      sink,
		validator: services.NewValidationHelper(),
	}
}

// TransferRequest is the submit-transfer payload. Amount is a decimal
// string in major units ("10.50"); anything below cent precision is
// rejected rather than rounded.
type TransferRequest struct {
	To          string `json:"to" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
}

// TransferResponse acknowledges acceptance only; the saga outcome travels
// on the event bus.
type TransferResponse struct {
	ID string `json:"id"`
}

// SubmitTransfer enqueues one confirm_money_transfer command for the
// authenticated user.
func (h *TransferHandler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	user, err := h.users.FindUserByID(r.Context(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		services.SendErrorResponse(w, "Unknown user", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		log.Printf("[TRANSFER] User lookup failed for %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to submit transfer", http.StatusInternalServerError, nil)
		return
	}
	if user.AccountNo == "" {
		services.SendErrorResponse(w, "Account not opened yet", http.StatusConflict, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransferRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	requestID := uuid.NewString()
	h.sink.Publish(events.NewConfirmMoneyTransfer(events.ConfirmMoneyTransfer{
		ID:          requestID,
		Token:       user.Token,
		Amount:      amount,
		From:        user.AccountNo,
		To:          req.To,
		Description: req.Description,
	}))
	log.Printf("[TRANSFER] Submitted transfer %s from %s", requestID, user.AccountNo)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(TransferResponse{ID: requestID})
}

// ListTransactions returns the authenticated user's newest history entries.
func (h *TransferHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	user, err := h.users.FindUserByID(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Unknown user", http.StatusUnauthorized, nil)
		return
	}

	entries, err := h.history.ListByAccount(r.Context(), user.AccountNo, 100)
	if err != nil {
		log.Printf("[TRANSFER] History lookup failed for %s: %v", user.AccountNo, err)
		services.SendErrorResponse(w, "Failed to load transactions", http.StatusInternalServerError, nil)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

var errBadAmount = errors.New("amount must be a positive decimal with at most 2 fractional digits")

// parseAmount converts a major-unit decimal string to minor units.
func parseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errBadAmount
	}
	cents := d.Shift(2)
	if !cents.IsInteger() || !cents.IsPositive() {
		return 0, errBadAmount
	}
	if !cents.BigInt().IsInt64() {
		return 0, errBadAmount
	}
	return cents.IntPart(), nil
}
