package middleware

import (
	"context"
	"net/http"
	"time"
)

// RequestTimeout bounds the request context. Handlers that trigger long
// work (manual sweeps) observe the deadline through r.Context().
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
