package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"uptime/internal/website/models"
	dErrors "uptime/pkg/domain-errors"
	"uptime/pkg/platform/httputil"
	authmw "uptime/pkg/platform/middleware/auth"
	request "uptime/pkg/platform/middleware/request"
	"uptime/pkg/platform/middleware/requesttime"
	"uptime/pkg/requestcontext"
)

// Service defines the interface for website operations.
type Service interface {
	Create(ctx context.Context, userID, rawURL string) (*models.Website, error)
	Status(ctx context.Context, userID, websiteID string) (*models.Website, error)
	List(ctx context.Context, userID string) ([]*models.Website, error)
	Disable(ctx context.Context, userID, websiteID string) error
}

// Handler serves the record API.
type Handler struct {
	logger       *slog.Logger
	websites     Service
	jwtValidator authmw.JWTValidator
}

// New creates a new website Handler.
func New(websites Service, logger *slog.Logger, jwtValidator authmw.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		websites:     websites,
		jwtValidator: jwtValidator,
	}
}

// Register registers the record API routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/api/v1/payout/{validatorId}", h.handlePayout)

	r.Group(func(api chi.Router) {
		api.Use(requesttime.Middleware)
		api.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		api.Post("/api/v1/website", h.handleCreate)
		api.Get("/api/v1/website/status", h.handleStatus)
		api.Get("/api/v1/websites", h.handleList)
		api.Delete("/api/v1/website", h.handleDisable)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create website request",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	website, err := h.websites.Create(ctx, requestcontext.UserID(ctx), req.URL)
	if err != nil {
		h.writeError(ctx, w, "failed to create website", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.CreateWebsiteResponse{ID: website.ID})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	website, err := h.websites.Status(ctx, requestcontext.UserID(ctx), r.URL.Query().Get("websiteId"))
	if err != nil {
		h.writeError(ctx, w, "failed to load website status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, website)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	websites, err := h.websites.List(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to list websites", err)
		return
	}
	if websites == nil {
		websites = []*models.Website{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListWebsitesResponse{Websites: websites})
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.DisableWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.websites.Disable(ctx, requestcontext.UserID(ctx), req.WebsiteID); err != nil {
		h.writeError(ctx, w, "failed to disable website", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{Message: "Website disabled successfully"})
}

func (h *Handler) handlePayout(w http.ResponseWriter, r *http.Request) {
	h.logger.WarnContext(r.Context(), "payout requested", "validator_id", chi.URLParam(r, "validatorId"))
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotImplemented, "Payout endpoint not implemented"))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
