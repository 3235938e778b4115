package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime/internal/signing"
	"uptime/internal/validator/agent"
	"uptime/internal/validator/identity"
	"uptime/internal/validator/probe"
)

func newTestAgent(t *testing.T) *agent.Agent {
	t.Helper()
	kp, err := signing.Generate()
	require.NoError(t, err)
	ident := identity.New()
	prober, err := probe.New(kp, ident)
	require.NoError(t, err)
	a, err := agent.New(agent.Config{HubURL: "ws://hub.test"}, kp, agent.NewWebsocketDialer(), prober, ident)
	require.NoError(t, err)
	return a
}

func TestOpsServer(t *testing.T) {
	a := newTestAgent(t)
	reg := prometheus.NewRegistry()

	t.Run("empty address disables the listener", func(t *testing.T) {
		assert.Nil(t, opsServer("", a, reg))
	})

	t.Run("serves health and metrics", func(t *testing.T) {
		srv := opsServer(":0", a, reg)
		require.NotNil(t, srv)
		assert.Equal(t, ":0", srv.Addr)

		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "disconnected", rec.Body.String())

		rec = httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
