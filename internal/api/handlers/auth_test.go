package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainauth "github.com/matiasleandrokruk/llmhub/internal/domain/auth"
	"github.com/matiasleandrokruk/llmhub/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/llmhub/pkg/auth"
)

const testSecret = "test-secret-key-32-chars-min!!!"

// mustOpenDB opens in-memory SQLite with all migrations applied.
func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.NewDB(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}
	return db
}

func newAuthHandler(t *testing.T, db *sql.DB) (*AuthHandler, *pkgauth.TokenIssuer) {
	t.Helper()
	issuer, err := pkgauth.NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer error = %v", err)
	}
	return NewAuthHandler(domainauth.NewService(db, issuer, nil)), issuer
}

func postRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_RegisterThenLogin(t *testing.T) {
	t.Parallel()

	h, issuer := newAuthHandler(t, mustOpenDB(t))

	rr := httptest.NewRecorder()
	h.Register(rr, postRequest(t, "/auth/register", RegisterRequest{
		Email: "alice@example.com", Password: "SecurePass123!", DisplayName: "Alice",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Register status = %d; want %d. body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var registered AuthResponse
	if err := json.NewDecoder(rr.Body).Decode(&registered); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if registered.UserID == "" {
		t.Error("response UserID is empty")
	}
	if registered.ExpiresIn != int64(time.Hour.Seconds()) {
		t.Errorf("ExpiresIn = %d; want %d", registered.ExpiresIn, int64(time.Hour.Seconds()))
	}
	claims, err := issuer.Parse(registered.Token)
	if err != nil {
		t.Fatalf("Parse(token) error = %v", err)
	}
	if claims.UserID != registered.UserID {
		t.Errorf("claims.UserID = %q; want %q", claims.UserID, registered.UserID)
	}

	rr = httptest.NewRecorder()
	h.Login(rr, postRequest(t, "/auth/login", LoginRequest{Email: "ALICE@example.com", Password: "SecurePass123!"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("Login status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var loggedIn AuthResponse
	if err := json.NewDecoder(rr.Body).Decode(&loggedIn); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if loggedIn.UserID != registered.UserID {
		t.Errorf("login UserID = %q; want %q", loggedIn.UserID, registered.UserID)
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	h, _ := newAuthHandler(t, db)

	rr := httptest.NewRecorder()
	h.Register(rr, postRequest(t, "/auth/register", RegisterRequest{
		Email: "dup@example.com", Password: "SecurePass123!", DisplayName: "Dup",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("first Register status = %d; want %d", rr.Code, http.StatusCreated)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate email", RegisterRequest{Email: "dup@example.com", Password: "SecurePass123!", DisplayName: "Dup"}, http.StatusConflict},
		{"invalid email", RegisterRequest{Email: "not-an-email", Password: "SecurePass123!", DisplayName: "X"}, http.StatusBadRequest},
		{"short password", RegisterRequest{Email: "x@example.com", Password: "short", DisplayName: "X"}, http.StatusBadRequest},
		{"missing display name", RegisterRequest{Email: "y@example.com", Password: "SecurePass123!"}, http.StatusBadRequest},
		{"unknown field", map[string]string{"email": "z@example.com", "workspaceName": "Acme"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.Register(rr, postRequest(t, "/auth/register", tt.body))
		if rr.Code != tt.want {
			t.Errorf("%s: status = %d; want %d. body: %s", tt.name, rr.Code, tt.want, rr.Body.String())
		}
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t, mustOpenDB(t))

	rr := httptest.NewRecorder()
	h.Register(rr, postRequest(t, "/auth/register", RegisterRequest{
		Email: "bob@example.com", Password: "SecurePass123!", DisplayName: "Bob",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Register status = %d; want %d", rr.Code, http.StatusCreated)
	}

	tests := []struct {
		name string
		body LoginRequest
		want int
	}{
		{"wrong password", LoginRequest{Email: "bob@example.com", Password: "WrongPass123!"}, http.StatusUnauthorized},
		{"unknown email", LoginRequest{Email: "nobody@example.com", Password: "SecurePass123!"}, http.StatusUnauthorized},
		{"missing email", LoginRequest{Password: "SecurePass123!"}, http.StatusBadRequest},
		{"missing password", LoginRequest{Email: "bob@example.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.Login(rr, postRequest(t, "/auth/login", tt.body))
		if rr.Code != tt.want {
			t.Errorf("%s: status = %d; want %d", tt.name, rr.Code, tt.want)
		}
	}
}
