package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/models"
)

// ErrUserNotFound is returned when no user row exists for a key.
var ErrUserNotFound = errors.New("user not found")

// AuthService owns front-door sessions on the transaction service. A user
// without an account number has a pending (or never started) creation saga;
// login kicks one off by publishing confirm_account_creation. The outcome
// arrives asynchronously on the result topics, never in the HTTP response.
type AuthService struct {
	db        *sql.DB
	sink      EventSink
	validator *ValidationHelper
}

// LoginRequest is the login payload. Unknown usernames are registered on
// the fly, so login doubles as registration for new users.
type LoginRequest struct {
	Username    string `json:"username" validate:"required,min=3"`
	Password    string `json:"password" validate:"required,min=6"`
	AccountType string `json:"accountType" validate:"omitempty,oneof=Basic Premium"`
}

// AuthResponse carries the bearer token and the session user. AccountNo is
// empty until the account-creation saga confirms.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func NewAuthService(db *sql.DB, sink EventSink) *AuthService {
	return &AuthService{
		db:        db,
		sink:      sink,
		validator: NewValidationHelper(),
	}
}

// Register creates a new user. Unlike Login it rejects a taken username
// instead of authenticating it.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	_, err := s.findUserByUsername(r.Context(), req.Username)
	switch {
	case err == nil:
		SendErrorResponse(w, "Username already taken", http.StatusConflict, nil)
		return
	case !errors.Is(err, ErrUserNotFound):
		log.Printf("[AUTH] Lookup failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	user, err := s.createUser(r.Context(), req)
	if err != nil {
		log.Printf("[AUTH] Failed to create user %s: %v", req.Username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	log.Printf("[AUTH] Registered new user %s", user.ID)

	s.sink.Publish(events.NewConfirmAccountCreation(user.ID, user.AccountType))
	log.Printf("[AUTH] Requested account creation for user %s", user.ID)

	token, err := s.issueToken(user.ID)
	if err != nil {
		log.Printf("[AUTH] Failed to issue token for %s: %v", user.ID, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *user})
}

// Login authenticates or registers the user and, when the user has no
// account number yet, publishes a confirm_account_creation command keyed
// by the user id.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := s.findUserByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user, err = s.createUser(r.Context(), req)
		if err != nil {
			log.Printf("[AUTH] Failed to create user %s: %v", req.Username, err)
			SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
			return
		}
		log.Printf("[AUTH] Registered new user %s", user.ID)
	case err != nil:
		log.Printf("[AUTH] Lookup failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	default:
		ok, err := s.verifyPassword(r.Context(), user.ID, req.Password)
		if err != nil || !ok {
			SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
			return
		}
	}

	if user.AccountNo == "" {
		// The outcome arrives on account_creation_confirmed/_failed;
		// redeliveries are absorbed by the saga's idempotency record.
		s.sink.Publish(events.NewConfirmAccountCreation(user.ID, user.AccountType))
		log.Printf("[AUTH] Requested account creation for user %s", user.ID)
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		log.Printf("[AUTH] Failed to issue token for %s: %v", user.ID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *user})
}

// decodeCredentials reads and validates the shared register/login payload,
// writing the error response itself on failure.
func (s *AuthService) decodeCredentials(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return req, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return req, false
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return req, false
	}
	if req.AccountType == "" {
		req.AccountType = "Basic"
	}
	return req, true
}

// FindUserByID loads one session user.
func (s *AuthService) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, account_no, account_type, token, created_at, updated_at
		FROM users WHERE id = $1`, id))
}

func (s *AuthService) findUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, account_no, account_type, token, created_at, updated_at
		FROM users WHERE username = $1`, username))
}

func (s *AuthService) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.AccountNo, &u.AccountType, &u.Token, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *AuthService) createUser(ctx context.Context, req LoginRequest) (*models.User, error) {
	now := time.Now().UTC()
	u := &models.User{
		ID:          uuid.NewString(),
		Username:    req.Username,
		AccountType: req.AccountType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, account_no, account_type, token, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, '', $5, $6)`,
		u.ID, u.Username, hashPassword(req.Password), u.AccountType, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// SetAccountDetails stamps a user with the outcome of its creation saga.
func (s *AuthService) SetAccountDetails(ctx context.Context, userID, accountNo, token, accountType string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET account_no = $1, token = $2, account_type = $3, updated_at = $4
		WHERE id = $5`,
		accountNo, token, accountType, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set account details for %s: %w", userID, err)
	}
	return nil
}

func (s *AuthService) verifyPassword(ctx context.Context, userID, password string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&stored)
	if err != nil {
		return false, fmt.Errorf("failed to load password hash: %w", err)
	}
	return comparePassword(stored, password), nil
}

func (s *AuthService) issueToken(userID string) (string, error) {
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(expiry).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

func hashPassword(password string) string {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic(err) // crypto/rand failure means a broken platform
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(key)
}

func comparePassword(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(want, got) == 1
}
