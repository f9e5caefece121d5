// Package auth registers users and logs them in, issuing JWT access tokens.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/go-playground/validator/v10"

	domainaudit "github.com/matiasleandrokruk/llmhub/internal/domain/audit"
	"github.com/matiasleandrokruk/llmhub/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/llmhub/pkg/auth"
	"github.com/matiasleandrokruk/llmhub/pkg/uuid"
)

// ErrInvalidCredentials covers both unknown email and wrong password so
// Login never reveals which accounts exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
)

// InvalidInputError wraps a validation failure on RegisterInput.
type InvalidInputError struct {
	Field string
	Rule  string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: failed %s", e.Field, e.Rule)
}

type RegisterInput struct {
	Email       string `validate:"required,email,max=254"`
	Password    string `validate:"required,min=8,max=72"`
	DisplayName string `validate:"required,max=100"`
}

type LoginInput struct {
	Email    string
	Password string
}

// Result is returned after a successful Register or Login.
type Result struct {
	Token     string
	UserID    string
	ExpiresIn time.Duration
}

// User is the public view of a user_account row.
type User struct {
	ID          string `db:"id" json:"id"`
	Email       string `db:"email" json:"email"`
	DisplayName string `db:"display_name" json:"displayName"`
	CreatedAt   string `db:"created_at" json:"createdAt"`
}

type auditLogger interface {
	LogWithDetails(
		ctx context.Context,
		actorID string,
		actorType domainaudit.ActorType,
		action string,
		entityType *string,
		entityID *string,
		details *domainaudit.EventDetails,
		outcome domainaudit.Outcome,
	) error
}

// Service is backed by the user_account table.
type Service struct {
	db          *sql.DB
	issuer      *pkgauth.TokenIssuer
	auditLogger auditLogger
	validate    *validator.Validate
}

// NewService returns a Service. logger may be nil.
func NewService(db *sql.DB, issuer *pkgauth.TokenIssuer, logger auditLogger) *Service {
	return &Service{db: db, issuer: issuer, auditLogger: logger, validate: validator.New()}
}

// Register creates the user and returns a token for it. Email is matched case-insensitively.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	input.Email = normalizeEmail(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, &InvalidInputError{Field: strings.ToLower(verrs[0].Field()), Rule: verrs[0].Tag()}
		}
		return nil, err
	}

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	userID := uuid.NewV7()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_account (id, email, password_hash, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, input.Email, hash, input.DisplayName, now, now)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issue(ctx, userID, input.Email, "register")
}

// Login verifies the password and returns a fresh token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Result, error) {
	var row struct {
		ID           string `db:"id"`
		PasswordHash string `db:"password_hash"`
	}
	err := sqlscan.Get(ctx, s.db, &row,
		`SELECT id, password_hash FROM user_account WHERE email = ? LIMIT 1`,
		normalizeEmail(input.Email))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.logAuth(ctx, "unknown", "login", domainaudit.OutcomeDenied, "user_not_found")
		return nil, ErrInvalidCredentials
	}

	if !pkgauth.VerifyPassword(row.PasswordHash, input.Password) {
		s.logAuth(ctx, row.ID, "login", domainaudit.OutcomeDenied, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, row.ID, normalizeEmail(input.Email), "login")
}

// GetUser returns the user or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := sqlscan.Get(ctx, s.db, &u,
		`SELECT id, email, display_name, created_at FROM user_account WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *Service) issue(ctx context.Context, userID, email, action string) (*Result, error) {
	token, err := s.issuer.Issue(userID, email)
	if err != nil {
		s.logAuth(ctx, userID, action, domainaudit.OutcomeError, "jwt_generation_failed")
		return nil, err
	}
	s.logAuth(ctx, userID, action, domainaudit.OutcomeSuccess, "")
	return &Result{Token: token, UserID: userID, ExpiresIn: s.issuer.TTL()}, nil
}

func (s *Service) logAuth(ctx context.Context, userID, action string, outcome domainaudit.Outcome, reason string) {
	if s.auditLogger == nil {
		return
	}
	entityType := "user"
	var details *domainaudit.EventDetails
	if reason != "" {
		details = &domainaudit.EventDetails{Metadata: map[string]string{"reason": reason}}
	}
	_ = s.auditLogger.LogWithDetails(ctx, userID, domainaudit.ActorTypeUser, "auth."+action,
		&entityType, &userID, details, outcome)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
