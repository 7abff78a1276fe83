package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/internal/service"
	"chatrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// Recover turns a handler panic into a 500 response instead of a dropped
// connection.
func Recover(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := tracing.GetRequestID(r.Context())
				metrics.IncrementCounter("http_panics_total", nil, "Recovered handler panics")
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: requestID,
					service.LogFieldMethod:    r.Method,
					service.LogFieldURL:       r.URL.Path,
					"panic":                   rec,
					"stack":                   string(debug.Stack()),
				}).Error("Handler panicked")

				err := apperrors.New(apperrors.ErrCodeInternalError, "handler panic")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(err, requestID))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytes caps request bodies. Handlers see an error from the body
// reader once the limit is exceeded.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
