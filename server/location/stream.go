// Package location abstracts live position sources.
package location

import (
	"errors"
	"sync"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

const (
	// DefaultMinDistanceMeters matches the distance interval mobile clients watch positions with.
	DefaultMinDistanceMeters = 20

	// DefaultBufferSize is the per-subscriber sample buffer.
	DefaultBufferSize = 16
)

var (
	// ErrPermissionDenied is returned when the user has not granted access to their location.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrLocationUnavailable is returned when no location source can be acquired.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// SamplingPolicy controls which samples a provider reports.
type SamplingPolicy struct {
	// MinDistanceMeters is the minimum distance between successive reported samples.
	// Providers may drop samples that do not meet it. Zero reports every sample.
	MinDistanceMeters float64
}

// Subscription is a handle to an active stream of samples.
type Subscription interface {
	// Cancel stops delivery and closes the sample channel. Safe to call more than once.
	Cancel()
}

// Stream is a push-based, unbounded source of position samples.
type Stream interface {
	// Subscribe starts delivery of samples. Acquisition failures are reported here
	// (ErrPermissionDenied, ErrLocationUnavailable) and never per sample.
	Subscribe(policy SamplingPolicy) (<-chan geo.Coordinate, Subscription, error)
}

// subscriber buffers samples for a single consumer. Delivery never blocks: when
// the buffer is full the oldest undelivered sample is replaced.
type subscriber struct {
	mu       sync.Mutex
	ch       chan geo.Coordinate
	policy   SamplingPolicy
	last     geo.Coordinate
	hasLast  bool
	closed   bool
	once     sync.Once
	onCancel func()
}

func newSubscriber(policy SamplingPolicy, bufferSize int, onCancel func()) *subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &subscriber{
		ch:       make(chan geo.Coordinate, bufferSize),
		policy:   policy,
		onCancel: onCancel,
	}
}

// deliver pushes a sample to the consumer. Returns false once the subscriber is cancelled.
func (s *subscriber) deliver(c geo.Coordinate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if s.hasLast && s.policy.MinDistanceMeters > 0 &&
		geo.DistanceMeters(s.last, c) < s.policy.MinDistanceMeters {
		return true
	}

	select {
	case s.ch <- c:
	default:
		// Coalesce: drop the oldest so the newest position is never lost.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- c
	}

	s.last = c
	s.hasLast = true
	return true
}

func (s *subscriber) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()

		if s.onCancel != nil {
			s.onCancel()
		}
	})
}
