// Package requesttime pins one "now" per HTTP request so tick and website
// timestamps written during a request agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"uptime/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
