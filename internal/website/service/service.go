package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"uptime/internal/platform/metrics"
	"uptime/internal/website/models"
	dErrors "uptime/pkg/domain-errors"
	"uptime/pkg/platform/sentinel"
	"uptime/pkg/requestcontext"
)

// DefaultTickLimit caps the ticks returned with each website.
const DefaultTickLimit = 100

type Store interface {
	Create(ctx context.Context, w *models.Website) error
	FindByID(ctx context.Context, id string) (*models.Website, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Website, error)
	ListEnabled(ctx context.Context) ([]*models.Website, error)
	Disable(ctx context.Context, id string) error
	AddTick(ctx context.Context, t *models.Tick) error
	ListTicks(ctx context.Context, websiteID string, limit int) ([]models.Tick, error)
}

type TickPublisher interface {
	PublishTick(ctx context.Context, t models.Tick) error
}

// Service owns websites and their ticks. Every user-facing read is scoped to
// the caller; a website owned by someone else is reported as not found.
type Service struct {
	store     Store
	publisher TickPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tickLimit int
	newID     func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p TickPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTickLimit sets how many recent ticks accompany a website. Zero returns all.
func WithTickLimit(n int) Option {
	return func(s *Service) {
		s.tickLimit = n
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    slog.Default(),
		tickLimit: DefaultTickLimit,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, userID, rawURL string) (*models.Website, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user id is required")
	}
	normalized, err := models.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	w := &models.Website{
		ID:        s.newID(),
		URL:       normalized,
		UserID:    userID,
		CreatedAt: requestcontext.Now(ctx),
		Ticks:     []models.Tick{},
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create website")
	}
	if s.metrics != nil {
		s.metrics.IncrementWebsitesCreated()
	}
	s.logger.InfoContext(ctx, "website created",
		"website_id", w.ID,
		"user_id", userID,
		"url", w.URL,
	)
	return w, nil
}

// Status returns an enabled website owned by userID, with its recent ticks.
func (s *Service) Status(ctx context.Context, userID, websiteID string) (*models.Website, error) {
	if strings.TrimSpace(websiteID) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "websiteId is required")
	}
	w, err := s.owned(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}
	if w.Disabled {
		return nil, dErrors.New(dErrors.CodeNotFound, "Website not found")
	}
	if err := s.attachTicks(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// List returns the caller's enabled websites with their recent ticks.
func (s *Service) List(ctx context.Context, userID string) ([]*models.Website, error) {
	websites, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list websites")
	}
	for _, w := range websites {
		if err := s.attachTicks(ctx, w); err != nil {
			return nil, err
		}
	}
	return websites, nil
}

// Disable soft-deletes a website. Disabling twice succeeds.
func (s *Service) Disable(ctx context.Context, userID, websiteID string) error {
	if strings.TrimSpace(websiteID) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "websiteId is required")
	}
	if _, err := s.owned(ctx, userID, websiteID); err != nil {
		return err
	}
	if err := s.store.Disable(ctx, websiteID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "Website not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to disable website")
	}
	s.logger.InfoContext(ctx, "website disabled", "website_id", websiteID, "user_id", userID)
	return nil
}

// Enabled lists every website the hub should dispatch.
func (s *Service) Enabled(ctx context.Context) ([]*models.Website, error) {
	websites, err := s.store.ListEnabled(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list enabled websites")
	}
	return websites, nil
}

// RecordTick stores a verified result and publishes it. Publish failures are
// logged; the tick is already durable.
func (s *Service) RecordTick(ctx context.Context, tick models.Tick) (*models.Tick, error) {
	if tick.WebsiteID == "" || tick.ValidatorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tick requires website and validator ids")
	}
	if tick.ID == "" {
		tick.ID = s.newID()
	}
	if tick.CreatedAt.IsZero() {
		tick.CreatedAt = requestcontext.Now(ctx)
	}
	if err := s.store.AddTick(ctx, &tick); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "Website not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record tick")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTick(ctx, tick); err != nil {
			if s.metrics != nil {
				s.metrics.TickPublishFailures.Inc()
			}
			s.logger.WarnContext(ctx, "failed to publish tick",
				"website_id", tick.WebsiteID,
				"validator_id", tick.ValidatorID,
				"error", err,
			)
		}
	}
	return &tick, nil
}

func (s *Service) owned(ctx context.Context, userID, websiteID string) (*models.Website, error) {
	w, err := s.store.FindByID(ctx, websiteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Website not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load website")
	}
	if w.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "Website not found")
	}
	return w, nil
}

func (s *Service) attachTicks(ctx context.Context, w *models.Website) error {
	ticks, err := s.store.ListTicks(ctx, w.ID, s.tickLimit)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ticks")
	}
	w.Ticks = ticks
	return nil
}
