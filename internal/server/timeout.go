package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware gives each request context a deadline. Handlers stop
// cooperatively: the pipeline abandons its pass and upstream calls are
// cancelled once the deadline passes.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
