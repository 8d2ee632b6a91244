package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

func newTestSession(userID string) *Session {
	feed := location.NewFeed()
	return New(userID, feed, tracker.New(tracker.Config{Stream: feed}))
}

func locationSample() geo.Coordinate {
	return geo.Coordinate{Latitude: 40.7, Longitude: -74.0}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.NotNil(t, registry)
	assert.Equal(t, 0, registry.Count())
}

func TestNew(t *testing.T) {
	s := newTestSession("user-1")

	assert.Equal(t, "user-1", s.UserID)
	assert.Len(t, s.ID, 36)
	assert.False(t, s.CreatedAt.IsZero())
	assert.NotEqual(t, s.ID, newTestSession("user-1").ID)
}

func TestRegistry_Register(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		registry := NewRegistry()
		s := newTestSession("user-1")

		require.NoError(t, registry.Register(s))
		assert.Equal(t, 1, registry.Count())
		assert.Same(t, s, registry.Get("user-1"))
	})

	t.Run("nil session", func(t *testing.T) {
		err := NewRegistry().Register(nil)
		assert.EqualError(t, err, "cannot register nil session")
	})

	t.Run("empty user ID", func(t *testing.T) {
		err := NewRegistry().Register(newTestSession(""))
		assert.EqualError(t, err, "session user ID cannot be empty")
	})

	t.Run("duplicate user", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestSession("user-1")))

		err := registry.Register(newTestSession("user-1"))
		assert.EqualError(t, err, "user user-1 already has a session")
		assert.Equal(t, 1, registry.Count())
	})
}

func TestRegistry_GetOrCreate(t *testing.T) {
	registry := NewRegistry()
	created := 0
	create := func(userID string) *Session {
		created++
		return newTestSession(userID)
	}

	first := registry.GetOrCreate("user-1", create)
	second := registry.GetOrCreate("user-1", create)

	assert.Same(t, first, second)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_GetOrCreate_Concurrent(t *testing.T) {
	registry := NewRegistry()

	var mu sync.Mutex
	created := 0
	create := func(userID string) *Session {
		mu.Lock()
		created++
		mu.Unlock()
		return newTestSession(userID)
	}

	var wg sync.WaitGroup
	results := make([]*Session, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = registry.GetOrCreate("user-1", create)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	t.Run("closes the session", func(t *testing.T) {
		registry := NewRegistry()
		s := newTestSession("user-1")
		require.NoError(t, registry.Register(s))

		require.NoError(t, registry.Unregister("user-1"))

		assert.Nil(t, registry.Get("user-1"))
		assert.Equal(t, 0, registry.Count())
		assert.ErrorIs(t, s.Feed.Publish(locationSample()), location.ErrLocationUnavailable, "feed closed")
	})

	t.Run("unknown user", func(t *testing.T) {
		err := NewRegistry().Unregister("nobody")
		assert.EqualError(t, err, "no session for user nobody")
	})
}

func TestRegistry_ListAndUnregisterAll(t *testing.T) {
	registry := NewRegistry()
	var sessions []*Session
	for i := 0; i < 3; i++ {
		s := newTestSession(fmt.Sprintf("user-%d", i))
		sessions = append(sessions, s)
		require.NoError(t, registry.Register(s))
	}

	assert.Len(t, registry.List(), 3)

	registry.UnregisterAll()

	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.List())
	for _, s := range sessions {
		assert.Equal(t, tracker.Idle, s.Tracker.State())
		assert.Error(t, s.Feed.Publish(locationSample()))
	}
}

// routeService answers every route request and reports every position safe.
type routeService struct{}

func (routeService) RequestRoute(context.Context, geo.Coordinate, string) (*safety.Route, error) {
	return &safety.Route{Polyline: "_p~iF~ps|U_ulLnnqC_mqNvxq`@"}, nil
}

func (routeService) CheckProximity(context.Context, geo.Coordinate) (*safety.ProximityResult, error) {
	return &safety.ProximityResult{Status: safety.StatusSafe}, nil
}

func TestRegistry_PruneIdle(t *testing.T) {
	t.Run("removes idle sessions", func(t *testing.T) {
		registry := NewRegistry()
		s := newTestSession("user-1")
		require.NoError(t, registry.Register(s))

		pruned := registry.PruneIdle(time.Now().Add(time.Minute))

		assert.Equal(t, 1, pruned)
		assert.Equal(t, 0, registry.Count())
		assert.ErrorIs(t, s.Feed.Publish(locationSample()), location.ErrLocationUnavailable, "feed closed")
	})

	t.Run("keeps recently used sessions", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestSession("user-1")))
		cutoff := time.Now()

		time.Sleep(time.Millisecond)
		registry.Get("user-1")

		assert.Zero(t, registry.PruneIdle(cutoff))
		assert.Equal(t, 1, registry.Count())
	})

	t.Run("keeps tracking sessions", func(t *testing.T) {
		registry := NewRegistry()
		feed := location.NewFeed()
		s := New("user-1", feed, tracker.New(tracker.Config{Service: routeService{}, Stream: feed}))
		require.NoError(t, registry.Register(s))

		_, err := s.Tracker.RequestRoute(context.Background(), "Home", locationSample())
		require.NoError(t, err)

		assert.Zero(t, registry.PruneIdle(time.Now().Add(time.Minute)))
		assert.Same(t, s, registry.Get("user-1"))

		s.Tracker.StopTracking()
		assert.Equal(t, 1, registry.PruneIdle(time.Now().Add(time.Minute)))
		assert.Equal(t, 0, registry.Count())
	})
}

func TestSession_Touch(t *testing.T) {
	s := newTestSession("user-1")
	assert.Equal(t, s.CreatedAt.UnixNano(), s.LastActive().UnixNano())

	time.Sleep(time.Millisecond)
	s.Touch()
	assert.True(t, s.LastActive().After(s.CreatedAt))
	assert.False(t, s.Idle(s.CreatedAt))
	assert.True(t, s.Idle(time.Now().Add(time.Second)))
}
