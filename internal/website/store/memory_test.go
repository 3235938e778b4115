package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"uptime/internal/website/models"
	"uptime/pkg/platform/sentinel"
)

type WebsiteStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *WebsiteStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
}

func TestWebsiteStoreSuite(t *testing.T) {
	suite.Run(t, new(WebsiteStoreSuite))
}

func (s *WebsiteStoreSuite) newWebsite(userID string, offset time.Duration) *models.Website {
	w := &models.Website{
		ID:        uuid.NewString(),
		URL:       "https://example.com",
		UserID:    userID,
		CreatedAt: s.now.Add(offset),
	}
	s.Require().NoError(s.store.Create(s.ctx, w))
	return w
}

func (s *WebsiteStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds website by ID", func() {
		w := s.newWebsite("user-1", 0)
		found, err := s.store.FindByID(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Equal(w.URL, found.URL)
		s.Equal("user-1", found.UserID)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, uuid.NewString())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate ID", func() {
		w := s.newWebsite("user-1", 0)
		s.ErrorIs(s.store.Create(s.ctx, w), sentinel.ErrConflict)
	})

	s.Run("returned values are copies", func() {
		w := s.newWebsite("user-1", 0)
		found, err := s.store.FindByID(s.ctx, w.ID)
		s.Require().NoError(err)
		found.Disabled = true
		again, err := s.store.FindByID(s.ctx, w.ID)
		s.Require().NoError(err)
		s.False(again.Disabled)
	})
}

func (s *WebsiteStoreSuite) TestListing() {
	a := s.newWebsite("user-1", 2*time.Minute)
	b := s.newWebsite("user-1", time.Minute)
	other := s.newWebsite("user-2", 0)
	gone := s.newWebsite("user-1", 3*time.Minute)
	s.Require().NoError(s.store.Disable(s.ctx, gone.ID))

	s.Run("lists the user's enabled websites oldest first", func() {
		list, err := s.store.ListByUser(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal(b.ID, list[0].ID)
		s.Equal(a.ID, list[1].ID)
	})

	s.Run("lists every enabled website", func() {
		list, err := s.store.ListEnabled(s.ctx)
		s.Require().NoError(err)
		ids := make([]string, 0, len(list))
		for _, w := range list {
			ids = append(ids, w.ID)
		}
		s.Equal([]string{other.ID, b.ID, a.ID}, ids)
	})

	s.Run("disable of unknown website", func() {
		s.ErrorIs(s.store.Disable(s.ctx, "missing"), sentinel.ErrNotFound)
	})
}

func (s *WebsiteStoreSuite) TestTicks() {
	w := s.newWebsite("user-1", 0)
	for i := range 5 {
		s.Require().NoError(s.store.AddTick(s.ctx, &models.Tick{
			ID:          uuid.NewString(),
			WebsiteID:   w.ID,
			ValidatorID: "v1",
			Status:      "Good",
			Latency:     int64(i),
			CreatedAt:   s.now.Add(time.Duration(i) * time.Second),
		}))
	}

	s.Run("newest first with limit", func() {
		ticks, err := s.store.ListTicks(s.ctx, w.ID, 2)
		s.Require().NoError(err)
		s.Require().Len(ticks, 2)
		s.Equal(int64(4), ticks[0].Latency)
		s.Equal(int64(3), ticks[1].Latency)
	})

	s.Run("no limit returns all", func() {
		ticks, err := s.store.ListTicks(s.ctx, w.ID, 0)
		s.Require().NoError(err)
		s.Len(ticks, 5)
	})

	s.Run("tick for unknown website", func() {
		err := s.store.AddTick(s.ctx, &models.Tick{ID: "t", WebsiteID: "missing"})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("ticks survive disable", func() {
		s.Require().NoError(s.store.Disable(s.ctx, w.ID))
		ticks, err := s.store.ListTicks(s.ctx, w.ID, 0)
		s.Require().NoError(err)
		s.Len(ticks, 5)
	})
}
