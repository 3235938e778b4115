package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uptime/internal/validator/identity"
	"uptime/internal/validator/probe"
	"uptime/internal/wire"
)

// pipeConn is an in-memory session. The test plays the hub on the far end.
type pipeConn struct {
	toAgent   chan []byte
	fromAgent chan []byte
	closed    chan struct{}
	once      sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		toAgent:   make(chan []byte, 32),
		fromAgent: make(chan []byte, 32),
		closed:    make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	case data := <-c.toAgent:
		return data, nil
	}
}

func (c *pipeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.fromAgent <- data:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) sendRaw(raw string) {
	c.toAgent <- []byte(raw)
}

func (c *pipeConn) send(t *testing.T, typ wire.MessageType, payload any) {
	t.Helper()
	data, err := wire.Encode(typ, payload)
	require.NoError(t, err)
	c.toAgent <- data
}

func (c *pipeConn) next(t *testing.T) wire.Envelope {
	t.Helper()
	select {
	case data := <-c.fromAgent:
		env, err := wire.Decode(data)
		require.NoError(t, err)
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message from the agent")
		return wire.Envelope{}
	}
}

func decodeAs[T any](t *testing.T, env wire.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// fakeDialer hands out pipeConns after failing a configured number of dials.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    atomic.Int32
	sessions chan *pipeConn
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, sessions: make(chan *pipeConn, 8)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("connect: connection refused")
	}
	d.mu.Unlock()
	conn := newPipeConn()
	d.sessions <- conn
	return conn, nil
}

func (d *fakeDialer) nextSession(t *testing.T) *pipeConn {
	t.Helper()
	select {
	case conn := <-d.sessions:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the agent to dial")
		return nil
	}
}

// echoProber answers every job immediately with a Good result.
type echoProber struct {
	ident *identity.Handle
}

func (p echoProber) Handle(ctx context.Context, job wire.ValidateRequest, out probe.Emitter) error {
	return out.EmitResult(ctx, wire.ValidateResult{
		CallbackID:  job.CallbackID,
		WebsiteID:   job.WebsiteID,
		ValidatorID: p.ident.Get(),
		Status:      wire.StatusGood,
	})
}
