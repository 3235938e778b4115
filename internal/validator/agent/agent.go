// Package agent is the validator's connection manager. It owns the single
// session with the hub and walks the lifecycle
//
//	Disconnected -> Connecting -> AwaitingSignup -> Active -> Disconnected
//
// from one control loop. Inbound frames and signup expiry arrive as events on
// a channel, so every state transition happens on the loop goroutine; only
// probes run concurrently, and they reach the session through a
// write-serialized Conn. A signup the hub never acknowledges ends the session
// once its callback expires.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"uptime/internal/callback"
	"uptime/internal/signing"
	"uptime/internal/validator/identity"
	"uptime/internal/validator/metrics"
	"uptime/internal/validator/probe"
	"uptime/internal/wire"
)

const eventBuffer = 64

// ErrSignupNotAcknowledged ends a session whose signup callback expired.
var ErrSignupNotAcknowledged = errors.New("signup not acknowledged")

// Prober runs one validation job and emits its result exactly once.
type Prober interface {
	Handle(ctx context.Context, job wire.ValidateRequest, out probe.Emitter) error
}

// Config describes how the agent reaches and introduces itself to the hub.
type Config struct {
	HubURL         string
	IP             string
	Version        string
	Reconnect      ReconnectPolicy
	CallbackTTL    time.Duration
	HealthInterval time.Duration
	// FailFast makes Run return an error when the very first dial fails.
	FailFast bool
}

// Agent is the connection manager.
type Agent struct {
	cfg       Config
	keypair   *signing.Keypair
	dialer    Dialer
	prober    Prober
	identity  *identity.Handle
	callbacks *callback.Registry[wire.SignupAck]
	backoff   backoff.BackOff
	newID     func() string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	observer  func(State)

	state atomic.Int32
	jobs  sync.WaitGroup

	sessMu   sync.Mutex
	awaiting *pendingSignup
}

// pendingSignup routes the expiry of the current session's signup callback
// back into that session's loop.
type pendingSignup struct {
	callbackID string
	events     chan<- event
	done       <-chan struct{}
}

type Option func(*Agent)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithIDGenerator replaces the UUIDv7 generator used for signup callback ids.
func WithIDGenerator(fn func() string) Option {
	return func(a *Agent) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// WithStateObserver is called on the control loop after every transition.
func WithStateObserver(fn func(State)) Option {
	return func(a *Agent) {
		a.observer = fn
	}
}

// New wires the connection manager. The identity handle must be the one the
// prober reads from.
func New(cfg Config, keypair *signing.Keypair, dialer Dialer, prober Prober, ident *identity.Handle, opts ...Option) (*Agent, error) {
	if cfg.HubURL == "" {
		return nil, fmt.Errorf("hub url is required")
	}
	if keypair == nil {
		return nil, fmt.Errorf("keypair is required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if ident == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if cfg.Reconnect.InitialDelay <= 0 {
		cfg.Reconnect = DefaultReconnectPolicy()
	}

	a := &Agent{
		cfg:      cfg,
		keypair:  keypair,
		dialer:   dialer,
		prober:   prober,
		identity: ident,
		backoff:  cfg.Reconnect.NewBackOff(),
		newID:    newUUIDv7,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.callbacks = callback.New[wire.SignupAck](cfg.CallbackTTL, callback.WithExpiryHook(a.onSignupExpired))
	return a, nil
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Run drives sessions until ctx is done. It returns nil on shutdown and an
// error only when FailFast is set and the first dial fails. In-flight probes
// are awaited before returning.
func (a *Agent) Run(ctx context.Context) error {
	defer a.jobs.Wait()
	defer a.setState(StateDisconnected)

	go a.callbacks.Run(ctx, a.sweepInterval())
	if a.cfg.HealthInterval > 0 {
		go a.reportHealth(ctx)
	}

	connectedOnce := false
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		a.setState(StateConnecting)
		conn, err := a.dialer.Dial(ctx, a.cfg.HubURL)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			if !connectedOnce && a.cfg.FailFast {
				return fmt.Errorf("initial hub connection: %w", err)
			}
			a.logger.WarnContext(ctx, "hub connection failed", "url", a.cfg.HubURL, "attempt", attempt, "error", err)
		default:
			connectedOnce = true
			err = a.runSession(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			a.logger.WarnContext(ctx, "hub session closed", "error", err)
		}

		a.setState(StateDisconnected)
		delay := a.backoff.NextBackOff()
		if a.metrics != nil {
			a.metrics.IncReconnects()
		}
		a.logger.InfoContext(ctx, "reconnecting", "delay", delay, "attempt", attempt)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventClosed
	eventSignupExpired
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

// runSession owns conn until the hub closes it or ctx ends.
func (a *Agent) runSession(ctx context.Context, conn Conn) error {
	gen := a.identity.BeginSession()

	sessCtx, cancel := context.WithCancel(ctx)
	events := make(chan event, eventBuffer)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(sessCtx, conn, events)
	}()
	defer func() {
		cancel()
		_ = conn.Close()
		<-readDone
	}()

	a.setState(StateAwaitingSignup)
	callbackID := a.newID()
	a.watchSignup(&pendingSignup{callbackID: callbackID, events: events, done: sessCtx.Done()})
	defer a.watchSignup(nil)
	if err := a.signup(conn, gen, callbackID); err != nil {
		return err
	}
	defer a.callbacks.Forget(callbackID)

	out := &sessionEmitter{conn: conn, metrics: a.metrics}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.kind {
			case eventMessage:
				a.dispatch(ctx, ev.data, out)
			case eventClosed:
				return ev.err
			case eventSignupExpired:
				return ErrSignupNotAcknowledged
			}
		}
	}
}

func readLoop(ctx context.Context, conn Conn, events chan<- event) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case events <- event{kind: eventClosed, err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case events <- event{kind: eventMessage, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// signup registers the continuation before sending so a fast ack always finds it.
func (a *Agent) signup(conn Conn, gen uint64, callbackID string) error {
	a.callbacks.Register(callbackID, func(ack wire.SignupAck) {
		a.onSignup(gen, ack)
	})

	publicKey := a.keypair.PublicKeyString()
	data, err := wire.Encode(wire.TypeSignup, wire.SignupRequest{
		CallbackID:    callbackID,
		IP:            a.cfg.IP,
		PublicKey:     publicKey,
		SignedMessage: signing.Sign(signing.SignupAttestation(callbackID, publicKey), a.keypair),
		Version:       a.cfg.Version,
	})
	if err == nil {
		err = conn.WriteMessage(data)
	}
	if err != nil {
		a.callbacks.Forget(callbackID)
		return fmt.Errorf("send signup: %w", err)
	}
	a.logger.Debug("signup sent", "callback_id", callbackID, "public_key", publicKey)
	return nil
}

func (a *Agent) watchSignup(p *pendingSignup) {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	a.awaiting = p
}

// onSignupExpired runs on the sweeper goroutine. Only the current session's
// callback ends the session; ids from sessions already gone are just counted.
func (a *Agent) onSignupExpired(id string) {
	a.logger.Warn("signup callback expired without a response", "callback_id", id)
	if a.metrics != nil {
		a.metrics.IncCallbacksExpired()
	}

	a.sessMu.Lock()
	p := a.awaiting
	a.sessMu.Unlock()
	if p == nil || p.callbackID != id {
		return
	}
	select {
	case p.events <- event{kind: eventSignupExpired}:
	case <-p.done:
	}
}

// sweepInterval checks for expired callbacks twice per TTL.
func (a *Agent) sweepInterval() time.Duration {
	if a.cfg.CallbackTTL <= 0 {
		return 0
	}
	return a.cfg.CallbackTTL / 2
}

func (a *Agent) onSignup(gen uint64, ack wire.SignupAck) {
	if ack.ValidatorID == "" {
		a.logger.Warn("signup ack without validator id", "callback_id", ack.CallbackID)
		return
	}
	if !a.identity.Set(gen, ack.ValidatorID) {
		a.logger.Debug("ignoring signup ack from previous session", "callback_id", ack.CallbackID)
		return
	}
	a.setState(StateActive)
	a.backoff.Reset()
	a.logger.Info("registered validator", "validator_id", ack.ValidatorID)
}

// dispatch routes one inbound frame. Nothing here may take the session down:
// bad frames are logged and dropped.
func (a *Agent) dispatch(ctx context.Context, data []byte, out probe.Emitter) {
	defer func() {
		if r := recover(); r != nil {
			a.drop("panic", fmt.Errorf("handler panic: %v", r))
		}
	}()

	env, err := wire.Decode(data)
	if err != nil {
		a.drop("malformed", err)
		return
	}

	switch env.Type {
	case wire.TypeSignup:
		var ack wire.SignupAck
		if err := env.Unmarshal(&ack); err != nil {
			a.drop("malformed", err)
			return
		}
		if !a.callbacks.Resolve(ack.CallbackID, ack) {
			a.drop("unknown_callback", fmt.Errorf("no pending callback %q", ack.CallbackID))
		}
	case wire.TypeValidate:
		var job wire.ValidateRequest
		if err := env.Unmarshal(&job); err != nil {
			a.drop("malformed", err)
			return
		}
		a.startJob(ctx, job, out)
	default:
		a.drop("unknown_type", fmt.Errorf("unrecognized message type %q", env.Type))
	}
}

// startJob probes concurrently so a slow site never blocks the next frame.
// Probes use the agent context, not the session's: a result for a session
// that has since closed fails to send and is logged.
func (a *Agent) startJob(ctx context.Context, job wire.ValidateRequest, out probe.Emitter) {
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("validation handler panicked", "callback_id", job.CallbackID, "panic", r)
			}
		}()
		if err := a.prober.Handle(ctx, job, out); err != nil {
			a.logger.Warn("validation result not delivered",
				"callback_id", job.CallbackID,
				"website_id", job.WebsiteID,
				"error", err,
			)
		}
	}()
}

func (a *Agent) drop(reason string, err error) {
	a.logger.Warn("dropping inbound message", "reason", reason, "error", err)
	if a.metrics != nil {
		a.metrics.IncDropped(reason)
	}
}

func (a *Agent) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if a.metrics != nil {
		a.metrics.SetConnectionState(int(s))
	}
	if prev != s {
		a.logger.Debug("state transition", "from", prev, "state", s)
	}
	if a.observer != nil {
		a.observer(s)
	}
}

func (a *Agent) reportHealth(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id := a.identity.Get(); id != "" && a.State() == StateActive {
				a.logger.Info("validator active", "validator_id", id)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sessionEmitter sends results over the session a job arrived on.
type sessionEmitter struct {
	conn    Conn
	metrics *metrics.Metrics
}

func (e *sessionEmitter) EmitResult(_ context.Context, result wire.ValidateResult) error {
	data, err := wire.Encode(wire.TypeValidate, result)
	if err == nil {
		err = e.conn.WriteMessage(data)
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.IncSendFailures()
		}
		return err
	}
	return nil
}
