package testutil

import (
	"net/http"

	"uptime/pkg/requestcontext"
)

// WithUserID stores userID the way RequireAuth does after a valid token.
func WithUserID(req *http.Request, userID string) *http.Request {
	if userID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}
