// Package middleware holds the HTTP middleware of the daemon's metrics server.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/khatabook/creditbook/internal/pkg/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an ID, reusing the caller's when present,
// and attaches a logger carrying it to the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := logger.WithFields(r.Context(), map[string]interface{}{"request_id": requestID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
