// Package safety is the client for the remote routing and crime-proximity service.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
)

const (
	// DefaultTimeout bounds a single request to the service.
	DefaultTimeout = 10 * time.Second

	routePath     = "/get_directions"
	proximityPath = "/check_crime"
	sharePath     = "/share_location"
)

// NetworkError reports a failed call to the service: a transport failure,
// a non-2xx status, or an unreadable body.
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected HTTP status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": network error"
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is, or wraps, a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Client talks to the safety service over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// RequestRoute asks for a walking route from origin to a free-text destination.
func (c *Client) RequestRoute(ctx context.Context, origin geo.Coordinate, destination string) (*Route, error) {
	body := routeRequest{
		OriginLat:   origin.Latitude,
		OriginLng:   origin.Longitude,
		Destination: destination,
	}

	var route Route
	if err := c.post(ctx, "request route", routePath, body, &route); err != nil {
		return nil, err
	}

	c.logger.Debug("Received route",
		"destination", destination,
		"polylineLength", len(route.Polyline),
		"nearbyIncidents", len(route.NearbyIncidents))

	return &route, nil
}

// CheckProximity asks whether the position is near any reported incident.
func (c *Client) CheckProximity(ctx context.Context, at geo.Coordinate) (*ProximityResult, error) {
	var result ProximityResult
	if err := c.post(ctx, "check proximity", proximityPath, positionRequest{Latitude: at.Latitude, Longitude: at.Longitude}, &result); err != nil {
		return nil, err
	}

	switch result.Status {
	case StatusSafe, StatusDanger:
	default:
		return nil, &NetworkError{Op: "check proximity", Err: fmt.Errorf("unknown status %q", result.Status)}
	}

	return &result, nil
}

// ShareLocation sends a one-shot share of the position.
func (c *Client) ShareLocation(ctx context.Context, at geo.Coordinate) error {
	return c.post(ctx, "share location", sharePath, positionRequest{Latitude: at.Latitude, Longitude: at.Longitude}, nil)
}

// post sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (c *Client) post(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		netErr := &NetworkError{Op: op, StatusCode: resp.StatusCode}
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			netErr.Message = apiErr.Error
		}
		return netErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return nil
}
