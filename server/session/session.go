// Package session ties a user's location feed to their route tracker.
package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/tracker"
)

// Session is one user's walking session.
type Session struct {
	ID        string
	UserID    string
	Feed      *location.Feed
	Tracker   *tracker.Tracker
	CreatedAt time.Time

	// lastActive is the unix nano time of the last request that used the session.
	lastActive atomic.Int64
}

// New creates a session around an existing feed and tracker.
func New(userID string, feed *location.Feed, trk *tracker.Tracker) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Feed:      feed,
		Tracker:   trk,
		CreatedAt: now,
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Idle reports whether the session is not tracking and has not been used
// since cutoff.
func (s *Session) Idle(cutoff time.Time) bool {
	if s.Tracker != nil && s.Tracker.State() != tracker.Idle {
		return false
	}
	return s.LastActive().Before(cutoff)
}

// Close stops tracking and shuts the feed down.
func (s *Session) Close() {
	if s.Tracker != nil {
		s.Tracker.Close()
	}
	if s.Feed != nil {
		s.Feed.Close()
	}
}
