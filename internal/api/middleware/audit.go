package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/matiasleandrokruk/llmhub/internal/api/ctxkeys"
	domainaudit "github.com/matiasleandrokruk/llmhub/internal/domain/audit"
)

// AuditLogger is satisfied by *domainaudit.Service.
type AuditLogger interface {
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

// Audit records every authenticated request in audit_event after the handler
// returns. It must run after Auth.
func Audit(logger AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := ctxkeys.UserIDFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			action, entityType, entityID := actionFromRequest(r.Method, r.URL.Path)
			_ = logger.LogWithDetails(
				r.Context(),
				userID,
				domainaudit.ActorTypeUser,
				action,
				entityType,
				entityID,
				&domainaudit.EventDetails{Metadata: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status_code": recorder.statusCode,
					"duration_ms": time.Since(start).Milliseconds(),
				}},
				outcomeFromStatus(recorder.statusCode),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func outcomeFromStatus(statusCode int) domainaudit.Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return domainaudit.OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domainaudit.OutcomeDenied
	default:
		return domainaudit.OutcomeError
	}
}

func actionFromRequest(method, path string) (string, *string, *string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	fallback := strings.ToLower(method) + "_request"
	if len(segments) < 3 || segments[0] != "api" || segments[1] != "v1" {
		return fallback, nil, nil
	}

	if segments[2] == "settings" {
		return settingsAction(method, segments[3:])
	}

	entityType := singularEntity(segments[2])
	if entityType == "" {
		return fallback, nil, nil
	}

	switch len(segments) {
	case 3:
		return actionForCollection(method, entityType), strPtr(entityType), nil
	case 4:
		return actionForEntity(method, entityType), strPtr(entityType), strPtr(segments[3])
	}

	entityID := segments[3]
	switch segments[4] {
	case "messages":
		return actionForCollection(method, "message"), strPtr(entityType), strPtr(entityID)
	case "export":
		return "export_" + entityType, strPtr(entityType), strPtr(entityID)
	}
	return actionForEntity(method, entityType), strPtr(entityType), strPtr(entityID)
}

// settingsAction maps /settings/api-keys and /settings/models/{provider}/{model}.
func settingsAction(method string, rest []string) (string, *string, *string) {
	if len(rest) == 0 {
		return strings.ToLower(method) + "_request", nil, nil
	}
	switch rest[0] {
	case "api-keys":
		return actionForEntity(method, "api_keys"), strPtr("user_settings"), nil
	case "models":
		var id *string
		if len(rest) > 1 {
			id = strPtr(strings.Join(rest[1:], "/"))
		}
		return actionForEntity(method, "model_settings"), strPtr("model_settings"), id
	}
	return strings.ToLower(method) + "_request", nil, nil
}

func singularEntity(entity string) string {
	entityMap := map[string]string{
		"conversations": "conversation",
		"models":        "model",
		"providers":     "provider",
	}

	if value, ok := entityMap[entity]; ok {
		return value
	}
	return ""
}

func actionForCollection(method, entity string) string {
	if method == http.MethodPost {
		return "create_" + entity
	}
	if method == http.MethodGet {
		return "list_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func actionForEntity(method, entity string) string {
	if method == http.MethodGet {
		return "get_" + entity
	}
	if method == http.MethodPut || method == http.MethodPatch {
		return "update_" + entity
	}
	if method == http.MethodDelete {
		return "delete_" + entity
	}
	if method == http.MethodPost {
		return "create_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func strPtr(v string) *string {
	return &v
}
