// Package middleware holds the HTTP middleware for the /api/v1 routes.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/matiasleandrokruk/llmhub/internal/api/ctxkeys"
	pkgauth "github.com/matiasleandrokruk/llmhub/pkg/auth"
)

// TokenParser validates an access token. *pkgauth.TokenIssuer satisfies it.
type TokenParser interface {
	Parse(token string) (*pkgauth.Claims, error)
}

// Auth rejects requests without a valid "Authorization: Bearer <jwt>" header
// with 401 and stores the token's user id in the request context.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil || claims.UserID == "" {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := ctxkeys.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken returns "" when the header is missing, uses another
// scheme or carries an empty token.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
