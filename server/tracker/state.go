package tracker

import (
	"errors"
	"fmt"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

// State is the tracker lifecycle state.
type State int

const (
	Idle State = iota
	AwaitingRoute
	Tracking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRoute:
		return "awaiting_route"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON status documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrEmptyRoute is wrapped by RouteUnavailableError when the route decodes to no waypoints.
	ErrEmptyRoute = errors.New("route has no waypoints")

	// ErrEmptyDestination is wrapped by RouteUnavailableError when no destination was given.
	ErrEmptyDestination = errors.New("destination is empty")

	// ErrSuperseded is returned by RequestRoute when tracking was stopped or
	// another route was requested before the route arrived.
	ErrSuperseded = errors.New("route request superseded")

	// ErrClosed is returned once the tracker has been closed.
	ErrClosed = errors.New("tracker is closed")
)

// RouteUnavailableError reports that no usable route could be obtained.
type RouteUnavailableError struct {
	Destination string
	Err         error
}

func (e *RouteUnavailableError) Error() string {
	return fmt.Sprintf("route to %q unavailable: %v", e.Destination, e.Err)
}

func (e *RouteUnavailableError) Unwrap() error {
	return e.Err
}

// Route is an accepted route.
type Route struct {
	Waypoints   []geo.Coordinate `json:"waypoints"`
	Destination geo.Coordinate   `json:"destination"`

	// NearbyIncidents are incidents along the route, for display only.
	NearbyIncidents []IncidentSummary `json:"nearby_incidents"`
}

// IncidentSummary is the display form of an incident near the route.
type IncidentSummary struct {
	ID             string         `json:"id"`
	Location       string         `json:"location"`
	Rating         string         `json:"rating"`
	CrimeRate      float64        `json:"crime_rate"`
	DistanceMeters float64        `json:"distance"`
	Coordinate     geo.Coordinate `json:"coordinate"`
}

// Status is a point-in-time snapshot of a tracker.
type Status struct {
	State               State           `json:"state"`
	Destination         string          `json:"destination,omitempty"`
	DestinationPoint    *geo.Coordinate `json:"destination_point,omitempty"`
	Waypoints           int             `json:"waypoints"`
	Position            *geo.Coordinate `json:"position,omitempty"`
	SampleSequence      uint64          `json:"sample_sequence"`
	AppliedSequence     uint64          `json:"applied_sequence"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Degraded            bool            `json:"degraded"`
	AlertedCount        int             `json:"alerted_count"`
	PendingPrompts      int             `json:"pending_prompts"`
	OutstandingPrompt   string          `json:"outstanding_prompt,omitempty"`
}
