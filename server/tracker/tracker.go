// Package tracker drives a walking session: it obtains a route, follows the
// user's position and turns proximity responses into incident prompts.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/location"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
	"github.com/mattermost/mattermost-plugin-safewalk/server/polyline"
	"github.com/mattermost/mattermost-plugin-safewalk/server/safety"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/mattermost/mattermost-plugin-safewalk/server/tracker Service

const (
	// DefaultDegradedThreshold is the number of consecutive proximity failures
	// before the user is told alerts may be delayed.
	DefaultDegradedThreshold = 3

	// DefaultQueryTimeout bounds a single proximity query.
	DefaultQueryTimeout = 10 * time.Second
)

// Service is the remote routing and proximity service.
type Service interface {
	RequestRoute(ctx context.Context, origin geo.Coordinate, destination string) (*safety.Route, error)
	CheckProximity(ctx context.Context, at geo.Coordinate) (*safety.ProximityResult, error)
}

// Config holds the collaborators and tunables of a Tracker.
type Config struct {
	Service  Service
	Sharer   alert.Sharer
	Stream   location.Stream
	Prompter alert.Prompter
	Policy   location.SamplingPolicy

	// DegradedThreshold defaults to DefaultDegradedThreshold.
	DegradedThreshold int

	// ArrivalRadiusMeters stops tracking once a sample lands this close to the
	// destination. Zero disables arrival detection.
	ArrivalRadiusMeters float64

	QueryTimeout time.Duration
	Logger       logger.Logger
}

// Tracker is the per-session route tracking state machine.
type Tracker struct {
	service           Service
	stream            location.Stream
	policy            location.SamplingPolicy
	degradedThreshold int
	arrivalRadius     float64
	queryTimeout      time.Duration
	logger            logger.Logger
	sequencer         *alert.Sequencer

	// mu is acquired before the sequencer's lock, never after.
	mu              sync.Mutex
	state           State
	generation      uint64
	destinationText string
	destination     geo.Coordinate
	waypoints       []geo.Coordinate
	position        geo.Coordinate
	hasPosition     bool
	sampleSeq       uint64
	appliedSeq      uint64
	failures        int
	degraded        bool
	sub             location.Subscription
	closed          bool

	wg sync.WaitGroup
}

// New creates an idle tracker.
func New(cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = DefaultDegradedThreshold
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	t := &Tracker{
		service:           cfg.Service,
		stream:            cfg.Stream,
		policy:            cfg.Policy,
		degradedThreshold: cfg.DegradedThreshold,
		arrivalRadius:     cfg.ArrivalRadiusMeters,
		queryTimeout:      cfg.QueryTimeout,
		logger:            cfg.Logger,
	}
	t.sequencer = alert.NewSequencer(cfg.Prompter, cfg.Sharer, t.CurrentPosition, cfg.Logger)

	return t
}

// RequestRoute starts a walk from origin to destination. Any walk in progress
// is torn down first.
func (t *Tracker) RequestRoute(ctx context.Context, destination string, origin geo.Coordinate) (*Route, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, &RouteUnavailableError{Err: ErrEmptyDestination}
	}
	if err := origin.Validate(); err != nil {
		return nil, &RouteUnavailableError{Destination: destination, Err: err}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.state != Idle {
		t.stopLocked()
	}
	t.generation++
	gen := t.generation
	t.state = AwaitingRoute
	t.destinationText = destination
	t.mu.Unlock()

	t.logger.Debug("Requesting route", "destination", destination, "origin", origin.String())

	route, waypoints, err := t.fetchRoute(ctx, origin, destination)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation != gen {
		return nil, ErrSuperseded
	}

	if err != nil {
		t.resetLocked()
		t.logger.Warn("Route unavailable", "destination", destination, "error", err.Error())
		return nil, &RouteUnavailableError{Destination: destination, Err: err}
	}

	samples, sub, err := t.stream.Subscribe(t.policy)
	if err != nil {
		t.resetLocked()
		t.logger.Warn("Failed to subscribe to location updates", "error", err.Error())
		return nil, err
	}

	dest := route.Destination
	if dest == (geo.Coordinate{}) {
		dest = waypoints[len(waypoints)-1]
	}

	t.sequencer.Reset()
	t.state = Tracking
	t.destinationText = destination
	t.destination = dest
	t.waypoints = waypoints
	t.position = origin
	t.hasPosition = true
	t.sampleSeq = 0
	t.appliedSeq = 0
	t.failures = 0
	t.degraded = false
	t.sub = sub

	t.wg.Add(1)
	go t.consume(gen, samples)

	t.logger.Info("Tracking started",
		"destination", destination,
		"waypoints", len(waypoints),
		"nearbyIncidents", len(route.NearbyIncidents))

	return &Route{
		Waypoints:       append([]geo.Coordinate(nil), waypoints...),
		Destination:     dest,
		NearbyIncidents: summarize(route.NearbyIncidents),
	}, nil
}

func (t *Tracker) fetchRoute(ctx context.Context, origin geo.Coordinate, destination string) (*safety.Route, []geo.Coordinate, error) {
	route, err := t.service.RequestRoute(ctx, origin, destination)
	if err != nil {
		return nil, nil, err
	}

	waypoints, err := polyline.Decode(route.Polyline)
	if err != nil {
		return nil, nil, err
	}
	if len(waypoints) == 0 {
		return nil, nil, ErrEmptyRoute
	}
	for i, waypoint := range waypoints {
		if err := waypoint.Validate(); err != nil {
			return nil, nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	if route.Destination != (geo.Coordinate{}) {
		if err := route.Destination.Validate(); err != nil {
			return nil, nil, fmt.Errorf("destination: %w", err)
		}
	}

	return route, waypoints, nil
}

// StopTracking ends the walk. Queries still in flight run to completion and
// their results are discarded. Stopping an idle tracker does nothing.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Idle {
		return
	}

	t.stopLocked()
	t.logger.Info("Tracking stopped", "destination", t.destinationText)
}

// Acknowledge dismisses the outstanding prompt and shows the next one.
func (t *Tracker) Acknowledge(promptID string) error {
	return t.sequencer.Acknowledge(promptID)
}

// ShareLocation shares the current tracked position for the outstanding prompt.
func (t *Tracker) ShareLocation(ctx context.Context, promptID string) error {
	return t.sequencer.ShareLocation(ctx, promptID)
}

// OutstandingPrompt returns the prompt waiting for a decision, if any.
func (t *Tracker) OutstandingPrompt() (alert.Prompt, bool) {
	return t.sequencer.Outstanding()
}

// CurrentPosition returns the most recent tracked position.
func (t *Tracker) CurrentPosition() (geo.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position, t.hasPosition
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := Status{
		State:               t.state,
		Waypoints:           len(t.waypoints),
		SampleSequence:      t.sampleSeq,
		AppliedSequence:     t.appliedSeq,
		ConsecutiveFailures: t.failures,
		Degraded:            t.degraded,
		AlertedCount:        t.sequencer.AlertedCount(),
		PendingPrompts:      t.sequencer.Pending(),
	}

	if t.state != Idle {
		status.Destination = t.destinationText
	}
	if t.state == Tracking {
		dest := t.destination
		status.DestinationPoint = &dest
	}
	if t.hasPosition {
		pos := t.position
		status.Position = &pos
	}
	if prompt, ok := t.sequencer.Outstanding(); ok {
		status.OutstandingPrompt = prompt.ID
	}

	return status
}

// Close stops tracking, rejects further routes and waits for in-flight work.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.state != Idle {
		t.stopLocked()
	}
	t.mu.Unlock()

	t.wg.Wait()
}

// stopLocked tears the session down and invalidates everything it started.
func (t *Tracker) stopLocked() {
	t.generation++

	if t.sub != nil {
		t.sub.Cancel()
		t.sub = nil
	}

	t.sequencer.Reset()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.state = Idle
	t.destinationText = ""
	t.destination = geo.Coordinate{}
	t.waypoints = nil
	t.position = geo.Coordinate{}
	t.hasPosition = false
	t.failures = 0
	t.degraded = false
}

func (t *Tracker) consume(gen uint64, samples <-chan geo.Coordinate) {
	defer t.wg.Done()

	for sample := range samples {
		if arrived := t.handleSample(gen, sample); arrived {
			t.sequencer.Notify(alert.Notice{Kind: alert.NoticeArrived, Message: "You have arrived at your destination."})
		}
	}
}

// handleSample records a sample and starts its proximity query. Returns true
// when the sample reached the destination and tracking stopped.
func (t *Tracker) handleSample(gen uint64, sample geo.Coordinate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation != gen || t.state != Tracking {
		return false
	}

	t.position = sample
	t.hasPosition = true
	t.sampleSeq++
	seq := t.sampleSeq

	if t.arrivalRadius > 0 && geo.DistanceMeters(sample, t.destination) <= t.arrivalRadius {
		t.logger.Info("Destination reached", "destination", t.destinationText)
		t.stopLocked()
		return true
	}

	t.wg.Add(1)
	go t.query(gen, seq, sample)
	return false
}

// query runs one proximity check and delivers whatever it produced. Delivery
// happens without t.mu so a slow prompter never holds up sample ingestion.
func (t *Tracker) query(gen, seq uint64, at geo.Coordinate) {
	defer t.wg.Done()

	// Not derived from the session: a stop lets the query finish and apply
	// discards the result.
	ctx, cancel := context.WithTimeout(context.Background(), t.queryTimeout)
	defer cancel()

	result, err := t.service.CheckProximity(ctx, at)

	outcome := t.apply(gen, seq, result, err)
	if outcome.notice != nil {
		t.sequencer.Notify(*outcome.notice)
	}
	if len(outcome.incidents) == 0 {
		return
	}

	added, current := t.sequencer.PresentIn(outcome.epoch, outcome.incidents)
	if !current {
		t.logger.Debug("Discarding incidents from stopped session", "sequence", seq)
		return
	}
	t.logger.Debug("Incidents nearby", "sequence", seq, "incidents", len(outcome.incidents), "queued", added)
}

// queryOutcome is what a proximity response asks the tracker to deliver.
type queryOutcome struct {
	notice    *alert.Notice
	incidents []safety.Incident
	epoch     uint64
}

// apply updates the session bookkeeping for one response. Responses from a
// stopped session or for a sample older than the newest applied one change
// nothing, including the failure streak.
func (t *Tracker) apply(gen, seq uint64, result *safety.ProximityResult, err error) queryOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	var outcome queryOutcome

	if t.generation != gen || t.state != Tracking {
		t.logger.Debug("Discarding proximity result from stopped session", "sequence", seq)
		return outcome
	}

	if seq < t.appliedSeq {
		t.logger.Debug("Discarding stale proximity result", "sequence", seq, "applied", t.appliedSeq)
		return outcome
	}

	if err != nil {
		t.failures++
		t.logger.Warn("Proximity check failed",
			"sequence", seq,
			"consecutiveFailures", t.failures,
			"error", err.Error())

		if t.failures >= t.degradedThreshold && !t.degraded {
			t.degraded = true
			outcome.notice = &alert.Notice{
				Kind:    alert.NoticeDegraded,
				Message: "Unable to reach the safety service. Alerts may be delayed.",
			}
		}
		return outcome
	}

	t.failures = 0
	if t.degraded {
		t.degraded = false
		outcome.notice = &alert.Notice{Kind: alert.NoticeRecovered, Message: "Connection to the safety service restored."}
	}
	t.appliedSeq = seq

	if result.IsDanger() {
		outcome.incidents = result.Incidents
		outcome.epoch = t.sequencer.Epoch()
	}
	return outcome
}

func summarize(incidents []safety.Incident) []IncidentSummary {
	out := make([]IncidentSummary, 0, len(incidents))
	for _, incident := range incidents {
		out = append(out, IncidentSummary{
			ID:             incident.ID,
			Location:       incident.Location,
			Rating:         string(incident.Rating),
			CrimeRate:      incident.CrimeRate,
			DistanceMeters: incident.DistanceMeters,
			Coordinate:     incident.Coordinate,
		})
	}
	return out
}
