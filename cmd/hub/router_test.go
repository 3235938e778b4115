package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "uptime/internal/jwt_token"
	"uptime/internal/platform/config"
	"uptime/internal/platform/metrics"
	"uptime/internal/website/service"
	"uptime/internal/website/store"
	"uptime/pkg/platform/middleware/request"
	"uptime/pkg/testutil"
)

func TestAPIRouter(t *testing.T) {
	testutil.Given(t, "the record API router", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		jwtService := jwttoken.NewHMACService("router-test-secret")
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := service.New(store.NewInMemory(), service.WithMetrics(m))
		ready := func(context.Context) error { return nil }
		router := apiRouter(config.Hub{FrontendURL: "http://localhost:3000"}, log, svc, jwtService, reg, ready)

		testutil.When(t, "calling GET /health", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

			testutil.Then(t, "it responds ok with a request id", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))
			})
		})

		testutil.When(t, "a browser preflights from the dashboard origin", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/websites", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			req.Header.Set("Access-Control-Request-Headers", "Authorization")
			rec := testutil.DoRequest(router, req)

			testutil.Then(t, "credentials are allowed for that origin only", func(t *testing.T) {
				assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			})
		})

		testutil.When(t, "a website is created with a valid token", func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken("user-1", time.Hour)
			require.NoError(t, err)
			req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/website", map[string]string{"url": "https://example.com"})
			rec := testutil.DoRequest(router, testutil.WithBearer(req, token))

			testutil.Then(t, "it is created and counted", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rec.Code)
				body := testutil.UnmarshalResponse[map[string]any](t, rec)
				assert.NotEmpty(t, (*body)["id"])

				metricsRec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
				assert.Equal(t, http.StatusOK, metricsRec.Code)
				assert.True(t, strings.Contains(metricsRec.Body.String(), "uptime_hub_websites_created_total 1"))
			})
		})

		testutil.When(t, "a backing service is down", func(t *testing.T) {
			down := apiRouter(config.Hub{}, log, svc, jwtService, prometheus.NewRegistry(), func(context.Context) error {
				return errors.New("redis: connection refused")
			})
			rec := testutil.DoRequest(down, testutil.NewRequest(t, http.MethodGet, "/readyz"))

			testutil.Then(t, "readiness reports unavailable", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rec, http.StatusServiceUnavailable, "service_unavailable")
			})
		})

		testutil.When(t, "the payout endpoint is called", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/api/v1/payout/v-1"))

			testutil.Then(t, "it responds not implemented", func(t *testing.T) {
				assert.Equal(t, http.StatusNotImplemented, rec.Code)
			})
		})
	})
}

func TestWarnOnDevKey(t *testing.T) {
	testutil.Given(t, "a hub config without JWT keys", func(t *testing.T) {
		var buf strings.Builder
		log := slog.New(slog.NewTextHandler(&buf, nil))

		testutil.When(t, "the development key is in use", func(t *testing.T) {
			warned := warnOnDevKey(config.Hub{JWTSigningKey: config.DevSigningKey, JWTDevKey: true}, log)

			testutil.Then(t, "a startup warning is logged", func(t *testing.T) {
				assert.True(t, warned)
				assert.Contains(t, buf.String(), "level=WARN")
				assert.Contains(t, buf.String(), "development signing key")
			})
		})
	})

	testutil.Given(t, "a hub config with a signing key", func(t *testing.T) {
		var buf strings.Builder
		log := slog.New(slog.NewTextHandler(&buf, nil))

		testutil.Then(t, "nothing is logged", func(t *testing.T) {
			assert.False(t, warnOnDevKey(config.Hub{JWTSigningKey: "s3cret"}, log))
			assert.Empty(t, buf.String())
		})
	})
}
