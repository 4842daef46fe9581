package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the whole request with a context deadline. Inner scopes
// (per-attempt, connect) derive from this context and can never outlive it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
