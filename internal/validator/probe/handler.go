// Package probe runs one validation job: a bounded-time HTTP GET against the
// job's URL, turned into exactly one signed ValidateResult.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"uptime/internal/signing"
	"uptime/internal/validator/metrics"
	"uptime/internal/wire"
)

const (
	// DefaultTimeout is the probe ceiling when none is configured.
	DefaultTimeout = 10 * time.Second

	// TimeoutMessage is reported in the error field when the ceiling fires.
	TimeoutMessage = "Request timed out"

	userAgent  = "uptime-validator/1.0"
	drainLimit = 4 << 10
)

// Emitter transmits a finished result to the hub.
type Emitter interface {
	EmitResult(ctx context.Context, result wire.ValidateResult) error
}

// IdentityReader yields the validator id stamped on each result.
type IdentityReader interface {
	Get() string
}

// Handler probes URLs and signs the outcome.
type Handler struct {
	keypair  *signing.Keypair
	identity IdentityReader
	client   *http.Client
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Handler)

// WithHTTPClient replaces the client used for probes. Its Timeout should be
// zero; the handler enforces its own ceiling.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		if client != nil {
			h.client = client
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithClock sets the source of result timestamps. Latency always uses the
// monotonic clock.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// New builds a Handler signing with keypair and stamping ids from identity.
func New(keypair *signing.Keypair, identity IdentityReader, opts ...Option) (*Handler, error) {
	if keypair == nil {
		return nil, fmt.Errorf("keypair is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity is required")
	}
	h := &Handler{
		keypair:  keypair,
		identity: identity,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer("uptime/validator/probe"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Timeout returns the configured probe ceiling.
func (h *Handler) Timeout() time.Duration {
	return h.timeout
}

// Handle validates job and emits its result exactly once.
func (h *Handler) Handle(ctx context.Context, job wire.ValidateRequest, out Emitter) error {
	result := h.Validate(ctx, job)
	if err := out.EmitResult(ctx, result); err != nil {
		return fmt.Errorf("emit result %s: %w", job.CallbackID, err)
	}
	return nil
}

// Validate probes job.URL and returns the signed result. It never fails: every
// error becomes a Bad result.
func (h *Handler) Validate(ctx context.Context, job wire.ValidateRequest) wire.ValidateResult {
	ctx, span := h.tracer.Start(ctx, "validator.probe", trace.WithAttributes(
		attribute.String("website.id", job.WebsiteID),
		attribute.String("callback.id", job.CallbackID),
	))
	defer span.End()

	h.logger.DebugContext(ctx, "validating", "url", job.URL, "callback_id", job.CallbackID)

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	code, latency, err := h.fetch(probeCtx, job.URL)
	if err != nil {
		timedOut := errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		result := h.failure(job, err, timedOut)
		span.SetStatus(codes.Error, result.Error)
		span.SetAttributes(attribute.String("validation.status", string(result.Status)))
		h.logger.WarnContext(ctx, "validation failed",
			"url", job.URL,
			"website_id", job.WebsiteID,
			"callback_id", job.CallbackID,
			"timed_out", timedOut,
			"error", err,
		)
		h.observe(result.Status, 0, false)
		return result
	}

	result := h.success(job, code, latency)
	span.SetAttributes(
		attribute.String("validation.status", string(result.Status)),
		attribute.Int("http.status_code", code),
	)
	h.logger.InfoContext(ctx, "validation complete",
		"url", job.URL,
		"website_id", job.WebsiteID,
		"status", result.Status,
		"latency_ms", result.Latency,
	)
	h.observe(result.Status, latency, true)
	return result
}

// fetch returns the status code and the time until response headers arrived.
func (h *Handler) fetch(ctx context.Context, url string) (int, time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	latency := time.Since(start)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	return resp.StatusCode, latency, nil
}

func (h *Handler) success(job wire.ValidateRequest, code int, latency time.Duration) wire.ValidateResult {
	status := wire.StatusBad
	if code == http.StatusOK {
		status = wire.StatusGood
	}
	return wire.ValidateResult{
		CallbackID:    job.CallbackID,
		Status:        status,
		Latency:       latency.Milliseconds(),
		WebsiteID:     job.WebsiteID,
		ValidatorID:   h.identity.Get(),
		SignedMessage: signing.Sign(signing.ValidationAttestation(job.CallbackID, job.WebsiteID), h.keypair),
		Timestamp:     h.now().UTC(),
	}
}

func (h *Handler) failure(job wire.ValidateRequest, err error, timedOut bool) wire.ValidateResult {
	latency := wire.LatencyUnknown
	msg := err.Error()
	if timedOut {
		latency = h.timeout.Milliseconds()
		msg = TimeoutMessage
	}
	return wire.ValidateResult{
		CallbackID:    job.CallbackID,
		Status:        wire.StatusBad,
		Latency:       latency,
		WebsiteID:     job.WebsiteID,
		ValidatorID:   h.identity.Get(),
		SignedMessage: signing.Sign(signing.ErrorAttestation(job.CallbackID, job.WebsiteID), h.keypair),
		Timestamp:     h.now().UTC(),
		Error:         msg,
	}
}

func (h *Handler) observe(status wire.Status, latency time.Duration, responded bool) {
	if h.metrics != nil {
		h.metrics.ObserveValidation(string(status), latency, responded)
	}
}
