package handlers

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/matiasleandrokruk/llmhub/internal/domain/auth"
)

// AuthService is satisfied by *domainauth.Service.
type AuthService interface {
	Register(ctx context.Context, input domainauth.RegisterInput) (*domainauth.Result, error)
	Login(ctx context.Context, input domainauth.LoginInput) (*domainauth.Result, error)
}

// AuthHandler serves the public register and login endpoints.
type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by both endpoints. ExpiresIn is in seconds.
type AuthResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Register handles POST /auth/register.
//
// Response codes:
//   - 201 Created: registration successful
//   - 400 Bad Request: invalid JSON or a field failed validation
//   - 409 Conflict: email already registered
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.authService.Register(r.Context(), domainauth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		var invalid *domainauth.InvalidInputError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.Is(err, domainauth.ErrEmailAlreadyExists):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

// Login handles POST /auth/login.
//
// Response codes:
//   - 200 OK: login successful
//   - 400 Bad Request: invalid JSON or missing fields
//   - 401 Unauthorized: invalid credentials, without saying which part was wrong
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateLoginRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), domainauth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func toAuthResponse(res *domainauth.Result) AuthResponse {
	return AuthResponse{
		Token:     res.Token,
		UserID:    res.UserID,
		ExpiresIn: int64(res.ExpiresIn.Seconds()),
	}
}

func validateLoginRequest(req LoginRequest) error {
	if req.Email == "" {
		return errors.New("email is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}
