package location

import (
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

// Replay is a Stream that plays back a fixed list of samples at a fixed
// interval. Each subscription plays the list from the start.
type Replay struct {
	samples  []geo.Coordinate
	interval time.Duration

	finishOnce sync.Once
	finished   chan struct{}
}

// NewReplay creates a replay source. The first sample is emitted after one interval.
func NewReplay(samples []geo.Coordinate, interval time.Duration) *Replay {
	copied := make([]geo.Coordinate, len(samples))
	copy(copied, samples)

	if interval <= 0 {
		interval = time.Millisecond
	}

	return &Replay{
		samples:  copied,
		interval: interval,
		finished: make(chan struct{}),
	}
}

// Finished is closed once any playback has emitted its last sample.
func (r *Replay) Finished() <-chan struct{} {
	return r.finished
}

// Subscribe implements Stream.
func (r *Replay) Subscribe(policy SamplingPolicy) (<-chan geo.Coordinate, Subscription, error) {
	if len(r.samples) == 0 {
		return nil, nil, ErrLocationUnavailable
	}

	stop := make(chan struct{})
	sub := newSubscriber(policy, DefaultBufferSize, func() { close(stop) })

	go r.play(sub, stop)

	return sub.ch, sub, nil
}

func (r *Replay) play(sub *subscriber, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for _, sample := range r.samples {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !sub.deliver(sample) {
			return
		}
	}

	r.finishOnce.Do(func() { close(r.finished) })
}
