package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/matiasleandrokruk/llmhub/internal/api/ctxkeys"
)

// RequestLogger logs one line per request. 5xx responses log at error level,
// 4xx at warn, everything else at info. The user id set by Auth further down
// the chain is included when present.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(ctxkeys.WithUserIDHolder(r.Context()))
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", r.RemoteAddr,
				}
				if reqID := chimw.GetReqID(r.Context()); reqID != "" {
					attrs = append(attrs, "request_id", reqID)
				}
				if userID, ok := ctxkeys.HeldUserID(r.Context()); ok {
					attrs = append(attrs, "user_id", userID)
				}

				switch {
				case status >= 500:
					logger.Error("http request", attrs...)
				case status >= 400:
					logger.Warn("http request", attrs...)
				default:
					logger.Info("http request", attrs...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
