package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/matiasleandrokruk/llmhub/internal/api/ctxkeys"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var errMissingUserID = errors.New("user_id not found in context")

func getUserID(r *http.Request) (string, error) {
	userID, ok := ctxkeys.UserIDFrom(r.Context())
	if !ok {
		return "", errMissingUserID
	}
	return userID, nil
}

// requireUser writes 401 and returns false when the request carries no user.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := getUserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// decodeJSON rejects unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
