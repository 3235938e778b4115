package callback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type RegistrySuite struct {
	suite.Suite
	clock    *fakeClock
	expired  []string
	registry *Registry[string]
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.expired = nil
	s.registry = New[string](time.Minute,
		WithClock(s.clock.Now),
		WithExpiryHook(func(id string) { s.expired = append(s.expired, id) }),
	)
}

// =============================================================================
// Resolve
// =============================================================================

func (s *RegistrySuite) TestResolve() {
	s.Run("invokes continuation once with payload", func() {
		var got []string
		s.registry.Register("s1", func(v string) { got = append(got, v) })

		s.True(s.registry.Resolve("s1", "v42"))
		s.Equal([]string{"v42"}, got)
		s.Equal(0, s.registry.Len())
	})

	s.Run("second resolve is a no-op", func() {
		calls := 0
		s.registry.Register("s2", func(string) { calls++ })

		s.True(s.registry.Resolve("s2", "a"))
		s.False(s.registry.Resolve("s2", "b"))
		s.Equal(1, calls)
	})

	s.Run("unknown id is a no-op", func() {
		s.NotPanics(func() {
			s.False(s.registry.Resolve("never-registered", "x"))
		})
	})

	s.Run("expired entry is not invoked", func() {
		calls := 0
		s.registry.Register("late", func(string) { calls++ })
		s.clock.Advance(2 * time.Minute)

		s.False(s.registry.Resolve("late", "x"))
		s.Equal(0, calls)
	})

	s.Run("forgotten entry is not invoked", func() {
		calls := 0
		s.registry.Register("gone", func(string) { calls++ })
		s.registry.Forget("gone")

		s.False(s.registry.Resolve("gone", "x"))
		s.Equal(0, calls)
	})
}

func (s *RegistrySuite) TestResolve_ConcurrentCallersInvokeOnce() {
	var calls atomic.Int32
	s.registry.Register("race", func(string) { calls.Add(1) })

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.registry.Resolve("race", "x")
		}()
	}
	wg.Wait()

	s.Equal(int32(1), calls.Load())
}

// =============================================================================
// Expiry
// =============================================================================

func (s *RegistrySuite) TestSweep() {
	s.registry.Register("old", func(string) {})
	s.clock.Advance(45 * time.Second)
	s.registry.Register("fresh", func(string) {})
	s.clock.Advance(30 * time.Second)

	s.Equal(1, s.registry.Sweep())
	s.Equal([]string{"old"}, s.expired)
	s.Equal(1, s.registry.Len())

	s.True(s.registry.Resolve("fresh", "x"))
}

func (s *RegistrySuite) TestRun_StopsOnCancel() {
	registry := New[int](10 * time.Millisecond)
	registry.Register("a", func(int) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	s.Eventually(func() bool { return registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}

func (s *RegistrySuite) TestNew_DefaultsTTL() {
	registry := New[int](0)
	s.Equal(defaultTTL, registry.ttl)
}
