package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"uptime/pkg/testutil"
)

type stubValidator map[string]*JWTClaims

func (s stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

func TestRequireAuth(t *testing.T) {
	validator := stubValidator{
		"good":  {UserID: "user-1"},
		"nosub": {},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequireAuth(validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r)))
	}))

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"bearer token", "Bearer good", http.StatusOK, "user-1"},
		{"bare token", "good", http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, MsgNoToken},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, MsgNoToken},
		{"unknown token", "Bearer forged", http.StatusUnauthorized, MsgInvalidToken},
		{"token without subject", "Bearer nosub", http.StatusUnauthorized, MsgInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/websites", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantBody)
		})
	}
}

func TestGetUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/websites", nil)
	assert.Empty(t, GetUserID(req))

	req = testutil.WithUserID(req, "user-42")
	assert.Equal(t, "user-42", GetUserID(req))
}
