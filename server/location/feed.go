package location

import (
	"fmt"
	"sync"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

// Feed is a Stream fed by an external producer, typically a mobile client
// posting its GPS fixes. Each subscriber applies its own sampling policy.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	denied      bool
	closed      bool
	last        geo.Coordinate
	hasLast     bool
	bufferSize  int
}

// NewFeed creates an open feed with no permission restriction.
func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[*subscriber]struct{}),
		bufferSize:  DefaultBufferSize,
	}
}

// SetPermission records whether the device has granted location access.
func (f *Feed) SetPermission(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = !granted
}

// Subscribe implements Stream.
func (f *Feed) Subscribe(policy SamplingPolicy) (<-chan geo.Coordinate, Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, nil, ErrLocationUnavailable
	}
	if f.denied {
		return nil, nil, ErrPermissionDenied
	}

	var sub *subscriber
	sub = newSubscriber(policy, f.bufferSize, func() { f.remove(sub) })
	f.subscribers[sub] = struct{}{}

	return sub.ch, sub, nil
}

// Publish hands a new fix to every subscriber.
func (f *Feed) Publish(c geo.Coordinate) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid sample: %w", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrLocationUnavailable
	}
	if f.denied {
		f.mu.Unlock()
		return ErrPermissionDenied
	}
	f.last = c
	f.hasLast = true

	subs := make([]*subscriber, 0, len(f.subscribers))
	for sub := range f.subscribers {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(c)
	}
	return nil
}

// Last returns the most recently published fix.
func (f *Feed) Last() (geo.Coordinate, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.hasLast
}

// SubscriberCount returns the number of active subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Close cancels every subscription. Later subscriptions fail with ErrLocationUnavailable.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := make([]*subscriber, 0, len(f.subscribers))
	for sub := range f.subscribers {
		subs = append(subs, sub)
		delete(f.subscribers, sub)
	}
	f.closed = true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, sub)
}
