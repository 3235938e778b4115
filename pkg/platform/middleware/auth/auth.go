package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "uptime/pkg/domain-errors"
	"uptime/pkg/platform/httputil"
	request "uptime/pkg/platform/middleware/request"
	"uptime/pkg/requestcontext"
)

const (
	MsgNoToken      = "Unauthorized: No token provided"
	MsgInvalidToken = "Unauthorized: Invalid token"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID string
}

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(r *http.Request) string {
	return requestcontext.UserID(r.Context())
}

// RequireAuth accepts "Authorization: Bearer <token>" or a bare token and
// stores the token subject as the user id.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			token := header
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				token = strings.TrimSpace(after)
			}

			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, MsgNoToken))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil || claims == nil || claims.UserID == "" {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, MsgInvalidToken))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, claims.UserID)))
		})
	}
}
