package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds request handling with a context deadline. It
// relies on handlers observing ctx.Done(); nothing is forcibly terminated.
// Streaming routes must not sit behind this middleware; a chat response
// legitimately outlives any sensible request timeout.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
