// Package hub is the reference hub that validators connect to. It accepts
// websocket sessions, verifies signups, hands out validate jobs and records
// every result whose signature checks out as a tick.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"uptime/internal/callback"
	"uptime/internal/platform/metrics"
	"uptime/internal/website/models"
	"uptime/internal/wire"
	"uptime/pkg/platform/middleware/metadata"
)

const (
	defaultResultTTL    = 2 * time.Minute
	defaultWriteTimeout = 10 * time.Second
	maxFrameBytes       = 64 << 10
)

// Identities maps a validator public key to its stable id.
type Identities interface {
	Resolve(ctx context.Context, publicKey string) (string, error)
}

// Websites is the slice of the website service the hub needs.
type Websites interface {
	Enabled(ctx context.Context) ([]*models.Website, error)
	RecordTick(ctx context.Context, tick models.Tick) (*models.Tick, error)
}

// inbound is a result together with the session it arrived on.
type inbound struct {
	ctx    context.Context
	result wire.ValidateResult
	from   *session
}

// Hub serves validator sessions over HTTP upgrade.
type Hub struct {
	identities   Identities
	websites     Websites
	pending      *callback.Registry[inbound]
	upgrader     websocket.Upgrader
	resultTTL    time.Duration
	writeTimeout time.Duration
	newID        func() string
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(h *Hub) {
		h.tracer = tracer
	}
}

// WithResultTTL bounds how long a dispatched job waits for its result.
func WithResultTTL(ttl time.Duration) Option {
	return func(h *Hub) {
		if ttl > 0 {
			h.resultTTL = ttl
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// WithIDGenerator overrides how job callback ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(h *Hub) {
		if fn != nil {
			h.newID = fn
		}
	}
}

func New(identities Identities, websites Websites, opts ...Option) (*Hub, error) {
	if identities == nil || websites == nil {
		return nil, errors.New("hub requires an identity registry and a website service")
	}
	h := &Hub{
		identities:   identities,
		websites:     websites,
		resultTTL:    defaultResultTTL,
		writeTimeout: defaultWriteTimeout,
		newID:        uuid.NewString,
		logger:       slog.Default(),
		tracer:       otel.Tracer("uptime/hub"),
		sessions:     make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Validators are not browsers; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.pending = callback.New[inbound](h.resultTTL, callback.WithExpiryHook(func(id string) {
		if h.metrics != nil {
			h.metrics.JobsExpired.Inc()
		}
		h.logger.Debug("validate job expired", "callback_id", id)
	}))
	return h, nil
}

// ServeHTTP upgrades the request and runs the session until the validator
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	s := newSession(ws, metadata.ClientIPFromRequest(r), h.writeTimeout)
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("validator connected", "remote", s.remote)

	h.serve(r.Context(), s)
}

func (h *Hub) serve(ctx context.Context, s *session) {
	defer h.remove(s)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("session read ended", "remote", s.remote, "error", err)
			}
			return
		}
		if err := h.handle(ctx, s, data); err != nil {
			h.logger.Warn("closing session", "remote", s.remote, "error", err)
			return
		}
	}
}

// handle returns an error only when the session must be closed.
func (h *Hub) handle(ctx context.Context, s *session, data []byte) error {
	env, err := wire.Decode(data)
	if err != nil {
		h.logger.Warn("dropping frame", "remote", s.remote, "error", err)
		return nil
	}
	switch env.Type {
	case wire.TypeSignup:
		var req wire.SignupRequest
		if err := env.Unmarshal(&req); err != nil {
			h.logger.Warn("dropping frame", "remote", s.remote, "error", err)
			return nil
		}
		return h.signup(ctx, s, req)
	case wire.TypeValidate:
		var res wire.ValidateResult
		if err := env.Unmarshal(&res); err != nil {
			h.logger.Warn("dropping frame", "remote", s.remote, "error", err)
			return nil
		}
		h.result(ctx, s, res)
		return nil
	default:
		h.logger.Warn("dropping frame", "remote", s.remote, "type", env.Type)
		return nil
	}
}

func (h *Hub) signup(ctx context.Context, s *session, req wire.SignupRequest) error {
	pub, err := VerifySignup(req)
	if err != nil {
		return err
	}
	if prev := s.key(); prev != "" && prev != req.PublicKey {
		return fmt.Errorf("session already signed up with key %s", prev)
	}
	validatorID, err := h.identities.Resolve(ctx, req.PublicKey)
	if err != nil {
		return fmt.Errorf("resolve validator identity: %w", err)
	}
	s.activate(validatorID, pub, req.PublicKey)
	h.reportConnected()

	if err := s.send(wire.TypeSignup, wire.SignupAck{CallbackID: req.CallbackID, ValidatorID: validatorID}); err != nil {
		return fmt.Errorf("send signup ack: %w", err)
	}
	h.logger.Info("validator signed up",
		"validator_id", validatorID,
		"public_key", req.PublicKey,
		"ip", req.IP,
		"version", req.Version,
	)
	return nil
}

func (h *Hub) result(ctx context.Context, s *session, res wire.ValidateResult) {
	if _, _, ok := s.identity(); !ok {
		h.logger.Warn("dropping result before signup", "remote", s.remote, "callback_id", res.CallbackID)
		return
	}
	if !h.pending.Resolve(res.CallbackID, inbound{ctx: ctx, result: res, from: s}) {
		h.logger.Debug("dropping result for unknown job", "callback_id", res.CallbackID)
	}
}

// record is the continuation of one dispatched job.
func (h *Hub) record(job wire.ValidateRequest, to *session, in inbound) {
	res := in.result
	validatorID, pub, _ := to.identity()
	log := h.logger.With("callback_id", job.CallbackID, "website_id", job.WebsiteID, "validator_id", validatorID)

	reject := func(msg string, args ...any) {
		if h.metrics != nil {
			h.metrics.ObserveResult(string(res.Status), false)
		}
		log.Warn(msg, args...)
	}
	if in.from != to {
		reject("result arrived on another session", "remote", in.from.remote)
		return
	}
	if res.WebsiteID != job.WebsiteID {
		reject("result names a different website", "got", res.WebsiteID)
		return
	}
	if err := VerifyResult(res, pub); err != nil {
		reject("result rejected", "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveResult(string(res.Status), true)
	}

	tick, err := h.websites.RecordTick(in.ctx, models.Tick{
		WebsiteID:   job.WebsiteID,
		ValidatorID: validatorID,
		Status:      string(res.Status),
		Latency:     res.Latency,
	})
	if err != nil {
		log.Error("failed to record tick", "error", err)
		return
	}
	log.Debug("tick recorded", "tick_id", tick.ID, "status", tick.Status, "latency_ms", tick.Latency)
}

// active returns the sessions that completed signup.
func (h *Hub) active() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		if _, _, ok := s.identity(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Connected reports how many validators have a signed-up session.
func (h *Hub) Connected() int {
	return len(h.active())
}

func (h *Hub) reportConnected() {
	if h.metrics != nil {
		h.metrics.SetValidatorsConnected(h.Connected())
	}
}

// remove forgets s. Its identity stays in the registry.
func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	_ = s.close()
	h.reportConnected()
	id, _, _ := s.identity()
	h.logger.Info("validator disconnected", "remote", s.remote, "validator_id", id)
}

// Close drops every open session. http.Server.Shutdown does not track
// hijacked connections, so callers shut the hub down separately.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		_ = s.close()
	}
}
