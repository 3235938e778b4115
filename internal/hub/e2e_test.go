package hub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime/internal/hub"
	"uptime/internal/hub/registry"
	"uptime/internal/signing"
	"uptime/internal/validator/agent"
	"uptime/internal/validator/identity"
	"uptime/internal/validator/probe"
	"uptime/internal/website/service"
	"uptime/internal/website/store"
)

// A real validator agent against a real hub, probing a local site.
func TestValidatorReportsToHub(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer site.Close()

	websites := store.NewInMemory()
	svc := service.New(websites)
	w, err := svc.Create(context.Background(), "user-1", site.URL)
	require.NoError(t, err)

	h, err := hub.New(registry.NewMemory(), svc, hub.WithResultTTL(time.Minute))
	require.NoError(t, err)
	hubServer := httptest.NewServer(h)
	defer hubServer.Close()
	defer h.Close()

	kp, err := signing.Generate()
	require.NoError(t, err)
	ident := identity.New()
	prober, err := probe.New(kp, ident, probe.WithTimeout(2*time.Second))
	require.NoError(t, err)

	a, err := agent.New(agent.Config{
		HubURL:  "ws" + strings.TrimPrefix(hubServer.URL, "http"),
		IP:      "127.0.0.1",
		Version: "1.0.0",
		Reconnect: agent.ReconnectPolicy{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   1,
		},
		CallbackTTL: time.Minute,
		FailFast:    true,
	}, kp, agent.NewWebsocketDialer(), prober, ident)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return ident.Get() != "" }, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.Connected() == 1 }, 3*time.Second, 5*time.Millisecond)

	sent, err := h.DispatchOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	require.Eventually(t, func() bool {
		ticks, err := websites.ListTicks(context.Background(), w.ID, 0)
		return err == nil && len(ticks) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ticks, err := websites.ListTicks(context.Background(), w.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "Good", ticks[0].Status)
	assert.Equal(t, ident.Get(), ticks[0].ValidatorID)
	assert.GreaterOrEqual(t, ticks[0].Latency, int64(0))
}
