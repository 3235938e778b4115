package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	t.Run("returns nil after shutdown", func(t *testing.T) {
		srv := New("127.0.0.1:0", http.NotFoundHandler())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Serve(ctx, srv, time.Second) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})

	t.Run("reports listen errors", func(t *testing.T) {
		srv := New("127.0.0.1:-1", http.NotFoundHandler())
		err := Serve(context.Background(), srv, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "serve 127.0.0.1:-1")
	})
}

func TestNew_Defaults(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 2*time.Minute, srv.IdleTimeout)
}
