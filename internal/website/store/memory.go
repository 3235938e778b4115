package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"uptime/internal/website/models"
	"uptime/pkg/platform/sentinel"
)

// InMemory stores websites and ticks in process memory. Returned values are
// copies; callers may mutate them freely.
type InMemory struct {
	mu       sync.RWMutex
	websites map[string]*models.Website
	ticks    map[string][]models.Tick
}

func NewInMemory() *InMemory {
	return &InMemory{
		websites: make(map[string]*models.Website),
		ticks:    make(map[string][]models.Tick),
	}
}

func (s *InMemory) Create(_ context.Context, w *models.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.websites[w.ID]; ok {
		return fmt.Errorf("website %s: %w", w.ID, sentinel.ErrConflict)
	}
	stored := *w
	stored.Ticks = nil
	s.websites[w.ID] = &stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.websites[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *w
	return &out, nil
}

func (s *InMemory) ListByUser(_ context.Context, userID string) ([]*models.Website, error) {
	return s.list(func(w *models.Website) bool { return w.UserID == userID && !w.Disabled }), nil
}

func (s *InMemory) ListEnabled(_ context.Context) ([]*models.Website, error) {
	return s.list(func(w *models.Website) bool { return !w.Disabled }), nil
}

func (s *InMemory) list(keep func(*models.Website) bool) []*models.Website {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Website, 0, len(s.websites))
	for _, w := range s.websites {
		if keep(w) {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *InMemory) Disable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	w.Disabled = true
	return nil
}

func (s *InMemory) AddTick(_ context.Context, t *models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.websites[t.WebsiteID]; !ok {
		return fmt.Errorf("website %s: %w", t.WebsiteID, sentinel.ErrNotFound)
	}
	s.ticks[t.WebsiteID] = append(s.ticks[t.WebsiteID], *t)
	return nil
}

// ListTicks returns up to limit ticks, newest first. limit <= 0 means all.
func (s *InMemory) ListTicks(_ context.Context, websiteID string, limit int) ([]models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.ticks[websiteID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Tick, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
