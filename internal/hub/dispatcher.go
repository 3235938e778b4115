package hub

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"uptime/internal/wire"
)

// DispatchOnce sends one validate job per enabled website to every signed-up
// validator and returns how many jobs went out.
func (h *Hub) DispatchOnce(ctx context.Context) (int, error) {
	ctx, span := h.tracer.Start(ctx, "hub.dispatch")
	defer span.End()

	websites, err := h.websites.Enabled(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list enabled websites")
		return 0, err
	}
	sessions := h.active()

	sent := 0
	for _, w := range websites {
		for _, s := range sessions {
			job := wire.ValidateRequest{URL: w.URL, CallbackID: h.newID(), WebsiteID: w.ID}
			h.pending.Register(job.CallbackID, func(in inbound) {
				h.record(job, s, in)
			})
			if err := s.send(wire.TypeValidate, job); err != nil {
				h.pending.Forget(job.CallbackID)
				h.logger.Warn("failed to send validate job", "remote", s.remote, "website_id", w.ID, "error", err)
				continue
			}
			sent++
			if h.metrics != nil {
				h.metrics.JobsDispatched.Inc()
			}
		}
	}
	span.SetAttributes(
		attribute.Int("hub.websites", len(websites)),
		attribute.Int("hub.validators", len(sessions)),
		attribute.Int("hub.jobs", sent),
	)
	if sent > 0 {
		h.logger.Debug("dispatched validate jobs", "jobs", sent, "websites", len(websites), "validators", len(sessions))
	}
	return sent, nil
}

// Run dispatches immediately and then every interval, and sweeps expired
// jobs, until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	go h.pending.Run(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := h.DispatchOnce(ctx); err != nil {
			h.logger.Error("dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
